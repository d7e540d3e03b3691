// Package embedding 缓存参考音频的音色向量。
//
// 每个参考音频（以绝对路径为键）只提取一次，结果在进程生命周期内复用。
// 并发的首次请求合并为一次提取，所有等待者拿到同一个指针或同一个错误。
// 提取失败不缓存，下次请求会重新提取。参考文件被修改后不会自动失效。
package embedding

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
	"github.com/iabetor/accentts/internal/reference"
)

// ExtractFunc 从参考音频提取音色向量。
type ExtractFunc func(ctx context.Context, ref core.Waveform) (*core.Embedding, error)

// Trimmer 在提取前去除参考音频中的静音。
type Trimmer interface {
	Trim(w core.Waveform) core.Waveform
}

// Store 在进程之外持久化音色向量，以文件大小和修改时间判断是否过期。
type Store interface {
	LookupEmbedding(path string, size int64, modTime time.Time) ([]float32, bool, error)
	SaveEmbedding(path string, size int64, modTime time.Time, vec []float32) error
}

// Option 配置缓存。
type Option func(*Cache)

// WithTrimmer 在提取前对参考音频做静音裁剪。
func WithTrimmer(t Trimmer) Option {
	return func(c *Cache) { c.trimmer = t }
}

// WithStore 在内存未命中时先查询持久化存储，提取成功后写回。
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// Cache 是按参考音频路径索引的音色向量缓存。
type Cache struct {
	extract ExtractFunc
	trimmer Trimmer
	store   Store

	mu      sync.RWMutex
	entries map[string]*core.Embedding
	group   singleflight.Group
}

// New 创建缓存。
func New(extract ExtractFunc, opts ...Option) *Cache {
	c := &Cache{
		extract: extract,
		entries: make(map[string]*core.Embedding),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get 返回参考音频的音色向量，未缓存时提取。
func (c *Cache) Get(ctx context.Context, voice *reference.Voice) (*core.Embedding, error) {
	if voice == nil || voice.Path == "" {
		return nil, core.E(core.KindEmbeddingExtraction, "embedding", errors.New("参考音频为空"))
	}
	key := voice.Path

	if emb, ok := c.lookup(key); ok {
		return emb, nil
	}

	// 提取结果被所有等待者共享，不随首个调用者取消
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		if emb, ok := c.lookup(key); ok {
			return emb, nil
		}
		return c.load(context.WithoutCancel(ctx), voice)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debugf("[embedding] 复用并发提取结果: %s", key)
	}
	return v.(*core.Embedding), nil
}

func (c *Cache) load(ctx context.Context, voice *reference.Voice) (*core.Embedding, error) {
	start := time.Now()
	if emb, ok := c.restore(voice); ok {
		return emb, nil
	}

	ref := voice.Waveform
	if c.trimmer != nil {
		ref = c.trimmer.Trim(ref)
	}

	emb, err := c.extract(ctx, ref)
	if err != nil {
		return nil, core.Ensure(core.KindEmbeddingExtraction, "embedding", err)
	}
	if emb == nil || len(emb.Vector) == 0 {
		return nil, core.E(core.KindEmbeddingExtraction, "embedding", errors.New("提取结果为空"))
	}

	// 复制一份，缓存中的向量不与模型返回值共享底层数组
	stored := &core.Embedding{
		Vector: append([]float32(nil), emb.Vector...),
		Source: voice.Path,
	}
	if len(emb.Aux) > 0 {
		stored.Aux = make(map[string][]float32, len(emb.Aux))
		for k, v := range emb.Aux {
			stored.Aux[k] = append([]float32(nil), v...)
		}
	}

	c.mu.Lock()
	c.entries[voice.Path] = stored
	c.mu.Unlock()

	logger.Infof("[embedding] 已提取音色 %s (dim=%d, %v)", voice.Path, stored.Dim(), time.Since(start).Round(time.Millisecond))

	// 条件张量不落盘，带 Aux 的向量只保存在内存里
	if c.store != nil && len(stored.Aux) == 0 {
		if err := c.store.SaveEmbedding(voice.Path, voice.Size, voice.ModTime, stored.Vector); err != nil {
			logger.Warnf("[embedding] 保存音色到数据库失败: %v", err)
		}
	}
	return stored, nil
}

// restore 从持久化存储读取未过期的音色向量，读取失败按未命中处理。
func (c *Cache) restore(voice *reference.Voice) (*core.Embedding, bool) {
	if c.store == nil {
		return nil, false
	}
	vec, ok, err := c.store.LookupEmbedding(voice.Path, voice.Size, voice.ModTime)
	if err != nil {
		logger.Warnf("[embedding] 读取数据库中的音色失败: %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	emb := &core.Embedding{Vector: vec, Source: voice.Path}
	c.mu.Lock()
	c.entries[voice.Path] = emb
	c.mu.Unlock()

	logger.Infof("[embedding] 从数据库恢复音色 %s (dim=%d)", voice.Path, emb.Dim())
	return emb, true
}

func (c *Cache) lookup(key string) (*core.Embedding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	emb, ok := c.entries[key]
	return emb, ok
}

// Len 返回已缓存的条目数。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Forget 删除一个条目，下次 Get 会重新提取。
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
