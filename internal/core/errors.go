package core

import (
	"errors"
	"fmt"
)

// Kind 是对外报告的错误类别，每个请求失败时只对应一个 Kind。
type Kind int

const (
	KindUnknown Kind = iota
	KindTextValidation
	KindReferenceNotFound
	KindReferenceDecode
	KindEmbeddingExtraction
	KindModelLoad
	KindSynthesis
	KindConversion
	KindEncoding
)

var kindNames = [...]string{
	"Unknown",
	"TextValidationError",
	"ReferenceNotFound",
	"ReferenceDecodeError",
	"EmbeddingExtractionError",
	"ModelLoadError",
	"SynthesisError",
	"ConversionError",
	"EncodingError",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// 每个 Kind 对应的哨兵错误，配合 errors.Is 使用。
var (
	ErrTextValidation      = errors.New("text validation error")
	ErrReferenceNotFound   = errors.New("reference voice not found")
	ErrReferenceDecode     = errors.New("reference voice decode error")
	ErrEmbeddingExtraction = errors.New("embedding extraction error")
	ErrModelLoad           = errors.New("model load error")
	ErrSynthesis           = errors.New("synthesis error")
	ErrConversion          = errors.New("conversion error")
	ErrEncoding            = errors.New("encoding error")
)

var kindSentinels = map[Kind]error{
	KindTextValidation:      ErrTextValidation,
	KindReferenceNotFound:   ErrReferenceNotFound,
	KindReferenceDecode:     ErrReferenceDecode,
	KindEmbeddingExtraction: ErrEmbeddingExtraction,
	KindModelLoad:           ErrModelLoad,
	KindSynthesis:           ErrSynthesis,
	KindConversion:          ErrConversion,
	KindEncoding:            ErrEncoding,
}

// Error 是带类别的错误。Op 记录出错的阶段或操作，Err 是底层原因。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E 构造一个带类别的错误。
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf 构造一个带类别的错误，消息按 fmt 规则格式化（支持 %w）。
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrXxx) 能按类别匹配。
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf 返回错误链中最外层 *Error 的类别，没有则返回 KindUnknown。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTyped 判断错误链中是否已经带有类别。
func IsTyped(err error) bool {
	return KindOf(err) != KindUnknown
}

// Ensure 在错误尚未带类别时按给定类别包装，已带类别的原样返回。
func Ensure(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTyped(err) {
		return err
	}
	return E(kind, op, err)
}
