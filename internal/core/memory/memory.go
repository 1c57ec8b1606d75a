package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultWindow は保持する直近ターン数のデフォルト値
const DefaultWindow = 3

// Turn は1回の質問と回答のやり取り
// 作成後は変更しない
type Turn struct {
	Question  string
	Answer    string
	ChunkIDs  []uuid.UUID // 回答の根拠として引用したチャンク
	Unknown   bool        // コンテキストに答えが無いと回答した場合 true
	CreatedAt time.Time
}

// Rephraser は会話履歴を踏まえて追質問を単独で意味の通る質問に書き換える
type Rephraser interface {
	Rephrase(ctx context.Context, question string, history []Turn) (string, error)
}

// Memory は直近 N ターンのみを保持するスライディングウィンドウ
// 1つのセッションが専有し、セッションの制御スレッドからのみ変更される
type Memory struct {
	capacity  int
	turns     []Turn
	rephraser Rephraser
}

// New は容量 capacity の Memory を作成する
// rephraser が nil の場合、Rephrase は質問をそのまま返す
func New(capacity int, rephraser Rephraser) *Memory {
	if capacity < 1 {
		capacity = DefaultWindow
	}
	return &Memory{
		capacity:  capacity,
		turns:     make([]Turn, 0, capacity),
		rephraser: rephraser,
	}
}

// Append はターンを追加し、容量を超えた場合は最も古いターンを破棄する
func (m *Memory) Append(turn Turn) {
	turn.ChunkIDs = append([]uuid.UUID(nil), turn.ChunkIDs...)
	m.turns = append(m.turns, turn)
	if over := len(m.turns) - m.capacity; over > 0 {
		m.turns = append(m.turns[:0:0], m.turns[over:]...)
	}
}

// Window は保持しているターンを古い順に返す（コピー）
func (m *Memory) Window() []Turn {
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Len は保持しているターン数を返す
func (m *Memory) Len() int {
	return len(m.turns)
}

// Capacity はウィンドウサイズを返す
func (m *Memory) Capacity() int {
	return m.capacity
}

// Reset は全ターンを破棄する
func (m *Memory) Reset() {
	m.turns = m.turns[:0]
}

// RephraseEnabled は書き換えが有効かどうかを返す
func (m *Memory) RephraseEnabled() bool {
	return m.rephraser != nil
}

// Rephrase は会話履歴を使って質問を書き換える
// 書き換えが無効、または履歴が空の場合は質問をそのまま返す
func (m *Memory) Rephrase(ctx context.Context, question string) (string, error) {
	if m.rephraser == nil || len(m.turns) == 0 {
		return question, nil
	}
	return m.rephraser.Rephrase(ctx, question, m.Window())
}
