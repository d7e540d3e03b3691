package pipeline

import (
	"sync"

	"github.com/iabetor/accentts/internal/logger"
)

// State 表示单个生成请求所处的阶段。
type State int

const (
	// StateIdle 请求尚未开始。
	StateIdle State = iota
	// StateValidating 校验输入文本。
	StateValidating
	// StateSynthesizing 用默认音色合成韩语音频。
	StateSynthesizing
	// StateResolvingReference 查找参考音频。
	StateResolvingReference
	// StateEmbedding 获取参考音色向量（可能命中缓存）。
	StateEmbedding
	// StateConverting 音色转换。
	StateConverting
	// StateEncoding 编码 MP3。
	StateEncoding
	// StateDone 成功结束。
	StateDone
	// StateFailed 失败结束。
	StateFailed
)

var stateNames = [...]string{
	"Idle",
	"Validating",
	"Synthesizing",
	"ResolvingReference",
	"Embedding",
	"Converting",
	"Encoding",
	"Done",
	"Failed",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Terminal 判断是否为终止状态。
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StateMachine 管理线程安全的状态转换。
type StateMachine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建一个初始状态为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
	}
}

// SetOnChange 注册状态变化时的回调函数。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前状态。
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换状态。只有合法的转换才会生效：
//
//	Idle → Validating → Synthesizing → ResolvingReference → Embedding → Converting → Encoding → Done
//
// 任何非终止状态都可以转换到 Failed；终止状态不再变化。
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		logger.Warnf("[state] 非法转换 %s → %s", sm.current, to)
		return false
	}

	from := sm.current
	sm.current = to

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// validTransition 检查状态转换是否合法。
func validTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	switch from {
	case StateIdle:
		return to == StateValidating
	case StateValidating:
		return to == StateSynthesizing
	case StateSynthesizing:
		return to == StateResolvingReference
	case StateResolvingReference:
		return to == StateEmbedding
	case StateEmbedding:
		return to == StateConverting
	case StateConverting:
		return to == StateEncoding
	case StateEncoding:
		return to == StateDone
	}
	return false
}
