// Package http は取引所クライアント用の HTTP クライアントを提供します。
package http

import (
	"net"
	"net/http"
	"time"
)

// maxIdleConnsPerHost は取引所ホストへの再利用可能な接続数です。
// IngestAll の同時実行数より大きくしておけば接続を張り直さずに済みます。
const maxIdleConnsPerHost = 16

// NewHTTPClient は取引所API呼び出し用のHTTPクライアントを作成します。
//
// timeout は1リクエスト全体の上限です。REST クライアントは試行ごとにも同じ値の
// コンテキストタイムアウトをかけます。SDK クライアントはこの値だけが上限になります。
//
// 注意: http.DefaultClient にはタイムアウトがないため使わないこと。
func NewHTTPClient(timeout time.Duration) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Timeout: timeout, Transport: t}
}
