// Package remote 访问远程工具服务：获取插件目录和下载插件包
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/errors"
	"github.com/lomehong/pluginadmin/pkg/i18n"
)

// maxResponseSize 目录响应的最大长度
const maxResponseSize = 8 << 20

// Fetcher 远程内容获取接口
type Fetcher interface {
	// Get 获取URL的响应内容
	Get(ctx context.Context, url string) ([]byte, error)
	// Download 下载URL到本地文件
	Download(ctx context.Context, url, dest string) error
}

// HTTPFetcher 基于HTTP的远程内容获取
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	logger    hclog.Logger
}

// Option 获取器选项
type Option func(*HTTPFetcher)

// WithClient 使用指定的HTTP客户端
func WithClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithUserAgent 设置User-Agent
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger hclog.Logger) Option {
	return func(f *HTTPFetcher) {
		f.logger = logger.Named("remote")
	}
}

// NewHTTPFetcher 创建HTTP获取器，timeout作用于单次请求
func NewHTTPFetcher(timeout time.Duration, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPFetcher) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRemoteFetch, i18n.KeyIncorrectRemoteResponse, "创建请求失败")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRemoteFetch, i18n.KeyIncorrectRemoteResponse, "请求远程服务失败")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, errors.New(errors.ErrorTypeRemoteFetch, i18n.KeyIncorrectRemoteResponse,
			fmt.Sprintf("远程服务返回状态码 %d", resp.StatusCode)).WithContext("url", url)
	}
	return resp, nil
}

// Get 获取URL的响应内容
func (f *HTTPFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	resp, err := f.do(ctx, url)
	if err != nil {
		f.logger.Warn("获取远程内容失败", "url", url, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRemoteFetch, i18n.KeyIncorrectRemoteResponse, "读取远程响应失败")
	}
	f.logger.Debug("已获取远程内容", "url", url, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

// Download 下载URL到dest，先写入临时文件再重命名
func (f *HTTPFetcher) Download(ctx context.Context, url, dest string) error {
	resp, err := f.do(ctx, url)
	if err != nil {
		f.logger.Warn("下载失败", "url", url, "error", err)
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, i18n.KeyUploadModuleError, "创建下载目录失败")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, i18n.KeyUploadModuleError, "创建临时文件失败")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeRemoteFetch, i18n.KeyIncorrectRemoteResponse, "写入下载内容失败")
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, i18n.KeyUploadModuleError, "保存下载文件失败")
	}

	f.logger.Info("下载完成", "url", url, "dest", dest, "bytes", n)
	return nil
}
