// Package sidecar 是模型推理服务（MeloTTS / OpenVoice 运行在 Python 进程中）的 HTTP 客户端。
//
// 音频在线路上以 base64 编码的 16-bit 小端单声道 PCM 传输，采样率单独给出。
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iabetor/accentts/internal/audio"
	"github.com/iabetor/accentts/internal/core"
)

const (
	pathHealth     = "/health"
	pathLoad       = "/v1/load"
	pathSynthesize = "/v1/synthesize"
	pathEmbedding  = "/v1/embedding"
	pathConvert    = "/v1/convert"

	contentTypeJSON = "application/json"
)

// Error 是 sidecar 返回的非 200 响应。
type Error struct {
	Status int
	Detail string
	Code   string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("sidecar 错误 (%d): %s (code: %s)", e.Status, e.Detail, e.Code)
	}
	return fmt.Sprintf("sidecar 错误 (%d): %s", e.Status, e.Detail)
}

type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// LoadRequest 要求 sidecar 加载一个模型。
type LoadRequest struct {
	Model          string `json:"model"`
	Language       string `json:"language,omitempty"`
	Device         string `json:"device,omitempty"`
	ConfigPath     string `json:"config_path,omitempty"`
	CheckpointPath string `json:"checkpoint_path,omitempty"`
}

// SynthesizeRequest 是 MeloTTS 合成请求。
type SynthesizeRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Speaker  string  `json:"speaker"`
	Speed    float64 `json:"speed"`
}

// ConvertRequest 是音色转换请求。
type ConvertRequest struct {
	Audio        core.Waveform
	SourceSEPath string
	TargetSE     []float32
	Message      string
}

type audioPayload struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sample_rate"`
}

type convertPayload struct {
	Audio        string    `json:"audio"`
	SampleRate   int       `json:"sample_rate"`
	SourceSEPath string    `json:"source_se_path"`
	TargetSE     []float32 `json:"target_se"`
	Message      string    `json:"message,omitempty"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Client 与 sidecar 通信，可并发使用。
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New 创建客户端，timeout 作用于每个请求。
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL 返回服务地址。
func (c *Client) BaseURL() string { return c.baseURL }

// Health 检查 sidecar 是否在线。
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("创建健康检查请求失败: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar %s 健康检查失败: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Load 加载模型，重复加载由 sidecar 负责幂等。
func (c *Client) Load(ctx context.Context, req LoadRequest) error {
	if req.Model == "" {
		return errors.New("模型名不能为空")
	}
	return c.post(ctx, pathLoad, req, nil)
}

// Synthesize 调用 MeloTTS 合成。
func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) (core.Waveform, error) {
	if strings.TrimSpace(req.Text) == "" {
		return core.Waveform{}, errors.New("合成文本不能为空")
	}
	var out audioPayload
	if err := c.post(ctx, pathSynthesize, req, &out); err != nil {
		return core.Waveform{}, err
	}
	return decodeAudio(out)
}

// Embedding 从参考音频提取说话人音色向量。
func (c *Client) Embedding(ctx context.Context, ref core.Waveform) ([]float32, error) {
	if ref.Empty() {
		return nil, errors.New("参考音频为空")
	}
	var out embeddingResponse
	in := audioPayload{Audio: audio.EncodeBase64PCM(ref.Samples), SampleRate: ref.SampleRate}
	if err := c.post(ctx, pathEmbedding, in, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("sidecar 返回的音色向量为空")
	}
	return out.Embedding, nil
}

// Convert 把源音频转换为目标音色。
func (c *Client) Convert(ctx context.Context, req ConvertRequest) (core.Waveform, error) {
	if req.Audio.Empty() {
		return core.Waveform{}, errors.New("源音频为空")
	}
	if len(req.TargetSE) == 0 {
		return core.Waveform{}, errors.New("目标音色向量为空")
	}
	in := convertPayload{
		Audio:        audio.EncodeBase64PCM(req.Audio.Samples),
		SampleRate:   req.Audio.SampleRate,
		SourceSEPath: req.SourceSEPath,
		TargetSE:     req.TargetSE,
		Message:      req.Message,
	}
	var out audioPayload
	if err := c.post(ctx, pathConvert, in, &out); err != nil {
		return core.Waveform{}, err
	}
	return decodeAudio(out)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求 sidecar %s%s 失败: %w", c.baseURL, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析 sidecar 响应失败: %w", err)
	}
	return nil
}

func parseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil && er.Detail != "" {
		return &Error{Status: resp.StatusCode, Detail: er.Detail, Code: er.ErrorCode}
	}
	detail := strings.TrimSpace(string(data))
	if detail == "" {
		detail = resp.Status
	}
	return &Error{Status: resp.StatusCode, Detail: detail}
}

func decodeAudio(p audioPayload) (core.Waveform, error) {
	if p.SampleRate <= 0 {
		return core.Waveform{}, fmt.Errorf("sidecar 返回了无效采样率: %d", p.SampleRate)
	}
	samples, err := audio.DecodeBase64PCM(p.Audio)
	if err != nil {
		return core.Waveform{}, err
	}
	return core.Waveform{Samples: samples, SampleRate: p.SampleRate}, nil
}
