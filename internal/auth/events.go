package auth

import "sync"

// SessionEventType はセッション変更イベントの種別を表す。
type SessionEventType string

const (
	// SessionEventSignedIn はセッションが発行されたことを示す。
	SessionEventSignedIn SessionEventType = "signed_in"
	// SessionEventSignedOut はセッションが破棄されたことを示す。
	SessionEventSignedOut SessionEventType = "signed_out"
)

// SessionEvent はセッション状態の変更を表す。
// クライアントのセッション変更フィード（SSE）に配信される。
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	UserID    string           `json:"user_id"`
	SessionID string           `json:"-"`
}

// Events はセッション変更イベントのインプロセス配信ハブ。
// ユーザーIDごとに購読者を管理し、Publishされたイベントを
// 該当ユーザーの全購読者にブロードキャストする。
// 購読チャネルはバッファ付きで、受信が追いつかない購読者への
// 配信はドロップされる（最新状態はクライアント側で再取得する）。
type Events struct {
	mu   sync.RWMutex
	subs map[string]map[chan SessionEvent]struct{}
}

// NewEvents はEventsを生成する。
func NewEvents() *Events {
	return &Events{
		subs: make(map[string]map[chan SessionEvent]struct{}),
	}
}

// Subscribe は指定ユーザーのイベント購読を開始する。
// 返されたcancelを呼ぶと購読が解除され、チャネルがクローズされる。
func (e *Events) Subscribe(userID string) (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, 8)

	e.mu.Lock()
	if e.subs[userID] == nil {
		e.subs[userID] = make(map[chan SessionEvent]struct{})
	}
	e.subs[userID][ch] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs[userID], ch)
			if len(e.subs[userID]) == 0 {
				delete(e.subs, userID)
			}
			e.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

// Publish はイベントを該当ユーザーの全購読者に配信する。
// バッファが満杯の購読者はスキップする（ブロックしない）。
func (e *Events) Publish(evt SessionEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for ch := range e.subs[evt.UserID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount は指定ユーザーの現在の購読者数を返す。
// テストおよびメトリクス用。
func (e *Events) SubscriberCount(userID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs[userID])
}
