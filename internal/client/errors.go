package client

import (
	"errors"
	"fmt"
)

// Kind classifies a failed call.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindServerError
	KindHTTPError
	KindTimeout
	KindNetworkFailure
	KindParseFailure
	KindOfflineNoCache
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindUnauthorized:   "unauthorized",
	KindForbidden:      "forbidden",
	KindNotFound:       "not_found",
	KindServerError:    "server_error",
	KindHTTPError:      "http_error",
	KindTimeout:        "timeout",
	KindNetworkFailure: "network_failure",
	KindParseFailure:   "parse_failure",
	KindOfflineNoCache: "offline_no_cache",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// User-facing messages, one per kind.
const (
	MsgUnauthorized   = "登录已过期，请重新登录"
	MsgForbidden      = "没有权限访问"
	MsgNotFound       = "请求的资源不存在"
	MsgServerError    = "服务器开小差了，请稍后再试"
	MsgHTTPError      = "请求失败: %d"
	MsgTimeout        = "请求超时，请检查网络"
	MsgNetworkFailure = "网络请求失败，请检查网络设置"
	MsgOffline        = "网络连接已断开，请检查网络"
	MsgParseFailure   = "数据格式错误，请稍后重试"
	MsgOfflineNoCache = "数据加载失败，暂无缓存数据"
)

// Error is a classified call failure.
type Error struct {
	Kind       Kind
	StatusCode int    // set for HTTP status failures
	Method     string // request method, when known
	Path       string // request path, when known
	Message    string // user-facing text
	Body       string // first bytes of an error response body
	Err        error  // underlying transport or decode error
}

func (e *Error) Error() string {
	target := e.Path
	if e.Method != "" {
		target = e.Method + " " + e.Path
	}
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s (HTTP %d)", target, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", target, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", target, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindUnknown when err is not a
// classified *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a classified *Error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// UserMessage returns the user-facing text for err.
func UserMessage(err error) string {
	var ce *Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return "请求失败，请重试"
}

// statusError maps a non-2xx status code to its kind and message.
func statusError(status int) (Kind, string) {
	switch {
	case status == 401:
		return KindUnauthorized, MsgUnauthorized
	case status == 403:
		return KindForbidden, MsgForbidden
	case status == 404:
		return KindNotFound, MsgNotFound
	case status >= 500:
		return KindServerError, MsgServerError
	default:
		return KindHTTPError, fmt.Sprintf(MsgHTTPError, status)
	}
}

// NewParseError builds a ParseFailure for a payload that could not be
// decoded into the expected shape.
func NewParseError(path string, err error) *Error {
	return &Error{Kind: KindParseFailure, Path: path, Message: MsgParseFailure, Err: err}
}

// ErrOfflineNoCache is returned by controllers when both the live fetch and
// the cache fallback have nothing to show.
var ErrOfflineNoCache = &Error{Kind: KindOfflineNoCache, Message: MsgOfflineNoCache}
