package orchestrator

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
	"unicode"
)

// Event 分词器输出的一个事件：一个词加其后的边界字符、一个独立的边界字符，或结束标记。
type Event struct {
	Text string
	Done bool
}

// Segmenter 将增量文本片段重新切分为按词边界对齐的事件。
//
// 每个片段的最后一个字符会被暂存，直到下一个片段或结束时才处理，
// 因此无论上游如何切分，输出事件的拼接结果都相同。Segmenter 只能使用一次。
type Segmenter struct {
	buf        []rune
	inWord     bool
	pending    rune
	hasPending bool
	closed     bool
}

// NewSegmenter 创建分词器。
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Feed 处理一个文本片段，通过 emit 输出已确定的事件。
func (s *Segmenter) Feed(fragment string, emit func(Event)) error {
	if s.closed {
		return ErrSegmenterClosed
	}
	for _, r := range fragment {
		if s.hasPending {
			s.step(s.pending, r, true, emit)
		}
		s.pending, s.hasPending = r, true
	}
	return nil
}

// Close 处理暂存字符，输出剩余缓冲区与结束标记。
func (s *Segmenter) Close(emit func(Event)) error {
	if s.closed {
		return ErrSegmenterClosed
	}
	s.closed = true
	if s.hasPending {
		s.step(s.pending, 0, false, emit)
		s.hasPending = false
	}
	if len(s.buf) > 0 {
		emit(Event{Text: string(s.buf)})
		s.buf = s.buf[:0]
	}
	emit(Event{Done: true})
	return nil
}

func (s *Segmenter) step(c, next rune, hasNext bool, emit func(Event)) {
	boundary := s.isBoundary(c, next, hasNext)
	if !boundary {
		s.buf = append(s.buf, c)
		s.inWord = true
		return
	}
	if s.inWord {
		emit(Event{Text: string(s.buf) + string(c)})
		s.buf = s.buf[:0]
		s.inWord = false
		return
	}
	emit(Event{Text: string(c)})
}

// isBoundary 判断 c 是否为硬边界。小数点、缩写中的点以及连字符在特定上下文中不是边界。
func (s *Segmenter) isBoundary(c, next rune, hasNext bool) bool {
	var last rune
	hasLast := len(s.buf) > 0
	if hasLast {
		last = s.buf[len(s.buf)-1]
	}

	if hasLast && hasNext {
		switch c {
		case '.':
			if unicode.IsDigit(last) && unicode.IsDigit(next) {
				return false
			}
			if unicode.IsUpper(last) && unicode.IsUpper(next) {
				return false
			}
		case '-':
			if isAlnum(last) && isAlnum(next) {
				return false
			}
		}
	}
	return unicode.IsSpace(c) || strings.ContainsRune(".,!?;:()[]{}", c)
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// EventStream 将生成节点的原始流包装为分词后的事件流。只能消费一次。
type EventStream struct {
	src      TokenStream
	seg      *Segmenter
	consumed bool
	mu       sync.Mutex
	closed   bool
}

// NewEventStream 包装原始流。
func NewEventStream(src TokenStream) *EventStream {
	return &EventStream{src: src, seg: NewSegmenter()}
}

// Events 逐个产出事件，最后一个事件的 Done 为 true。
// ctx 取消或消费方提前退出时关闭上游流。
func (e *EventStream) Events(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		e.mu.Lock()
		if e.consumed {
			e.mu.Unlock()
			yield(Event{}, ErrSegmenterClosed)
			return
		}
		e.consumed = true
		e.mu.Unlock()
		defer func() { _ = e.Close() }()

		var queue []Event
		collect := func(ev Event) { queue = append(queue, ev) }
		flush := func() bool {
			for _, ev := range queue {
				if !yield(ev, nil) {
					return false
				}
			}
			queue = queue[:0]
			return true
		}

		for {
			if err := ctx.Err(); err != nil {
				yield(Event{}, err)
				return
			}
			fragment, err := e.src.Recv()
			if errors.Is(err, io.EOF) {
				_ = e.seg.Close(collect)
				flush()
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				yield(Event{}, err)
				return
			}
			_ = e.seg.Feed(fragment, collect)
			if !flush() {
				return
			}
		}
	}
}

// Collect 读取全部事件并返回拼接后的文本。
func (e *EventStream) Collect(ctx context.Context) (string, error) {
	var sb strings.Builder
	for ev, err := range e.Events(ctx) {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(ev.Text)
	}
	return sb.String(), nil
}

// Close 关闭上游流，可重复调用。
func (e *EventStream) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.src.Close()
}
