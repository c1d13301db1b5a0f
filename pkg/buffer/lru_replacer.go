package buffer

import (
	"container/list"
	"log/slog"
	"sync"
)

// LRUReplacer 负责追踪可以被驱逐的 Frame，驱逐最久未被 Unpin 的那个
// 管理的不是 PageID，而是 FrameID (缓冲池数组的索引)
type LRUReplacer struct {
	mu       sync.Mutex
	capacity int
	list     *list.List                // 头部是最近 Unpin，尾部是最久未用
	elements map[FrameID]*list.Element // FrameID -> 链表节点
	logger   *slog.Logger
}

func NewLRUReplacer(capacity int) *LRUReplacer {
	return &LRUReplacer{
		capacity: capacity,
		list:     list.New(),
		elements: make(map[FrameID]*list.Element),
		logger:   slog.Default(),
	}
}

// Victim 移除并返回最久未使用的 FrameID (链表尾部)
func (l *LRUReplacer) Victim() (FrameID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem := l.list.Back()
	if elem == nil {
		return -1, false
	}
	frameID := elem.Value.(FrameID)
	l.list.Remove(elem)
	delete(l.elements, frameID)
	return frameID, true
}

// Pin 页面正在被使用，从列表中移除，等 Unpin 时再加回来
func (l *LRUReplacer) Pin(frameID FrameID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.elements[frameID]
	if !ok {
		l.logger.Warn("lru replacer: pin of frame not in replacer", "frame", int(frameID))
		return
	}
	l.list.Remove(elem)
	delete(l.elements, frameID)
}

// Unpin 页面不再被使用，放到链表头部
func (l *LRUReplacer) Unpin(frameID FrameID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.elements[frameID]; ok {
		l.logger.Warn("lru replacer: frame unpinned twice", "frame", int(frameID))
		l.list.MoveToFront(elem)
		return
	}
	if frameID < 0 || int(frameID) >= l.capacity {
		l.logger.Warn("lru replacer: frame out of range", "frame", int(frameID), "frames", l.capacity)
		return
	}
	l.elements[frameID] = l.list.PushFront(frameID)
}

func (l *LRUReplacer) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}

func (l *LRUReplacer) setLogger(logger *slog.Logger) { l.logger = logger }
