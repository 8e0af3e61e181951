// Package entities defines the domain entities for the voice notes service.
package entities

import "time"

// Context определяет тип треда, к которому прикреплена голосовая заметка.
type Context string

// Поддерживаемые контексты заметок.
const (
	ContextTask Context = "task"
	ContextSafe Context = "safe"
)

// Valid проверяет, что контекст является одним из поддерживаемых значений.
func (c Context) Valid() bool {
	return c == ContextTask || c == ContextSafe
}

// Scope - ключ подписки: семья + контекст + родительский тред.
type Scope struct {
	FamilyID string  `json:"family_id"`
	Context  Context `json:"context"`
	ParentID string  `json:"parent_id"`
}

// Reaction представляет собой emoji-реакцию одного пользователя на заметку.
// Инвариант: не более одной реакции на пользователя в пределах заметки.
type Reaction struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// VoiceNote представляет собой голосовую заметку семьи.
// Поля Username и Role - снимок данных автора на момент создания,
// они не обновляются при изменении профиля.
type VoiceNote struct {
	ID          string     `json:"id"`
	FamilyID    string     `json:"family_id"`
	Context     Context    `json:"context"`
	ParentID    string     `json:"parent_id"`
	UserID      string     `json:"user_id"`
	Username    string     `json:"username,omitempty"`
	Role        string     `json:"role,omitempty"`
	StoragePath string     `json:"storage_path"`
	URL         string     `json:"url"`
	DurationMs  int64      `json:"duration_ms"`
	CreatedAt   time.Time  `json:"created_at"`
	Reactions   []Reaction `json:"reactions"`
}

// Scope возвращает ключ подписки заметки.
func (n *VoiceNote) Scope() Scope {
	return Scope{FamilyID: n.FamilyID, Context: n.Context, ParentID: n.ParentID}
}

// ReactionOf возвращает реакцию пользователя, если она есть.
func (n *VoiceNote) ReactionOf(userID string) (Reaction, bool) {
	for _, r := range n.Reactions {
		if r.UserID == userID {
			return r, true
		}
	}
	return Reaction{}, false
}

// VoiceNoteDraft - данные новой заметки до присвоения идентификатора
// и серверной метки времени.
type VoiceNoteDraft struct {
	FamilyID    string
	Context     Context
	ParentID    string
	UserID      string
	Username    string
	Role        string
	StoragePath string
	URL         string
	DurationMs  int64
}

// NewDraft создает черновик заметки для указанной области и автора.
func NewDraft(scope Scope, userID, username, role string) *VoiceNoteDraft {
	return &VoiceNoteDraft{
		FamilyID: scope.FamilyID,
		Context:  scope.Context,
		ParentID: scope.ParentID,
		UserID:   userID,
		Username: username,
		Role:     role,
	}
}
