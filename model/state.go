package model

import "time"

// Feature names for daily-limited actions.
const (
	FeatureScan        = "scan"
	FeatureQuiz        = "quiz"
	FeatureLecture     = "lecture"
	FeatureTranslation = "translation"
)

// DailyCounter pairs a usage count with the ISO date it was last reset.
type DailyCounter struct {
	Count int    `json:"count"`
	Date  string `json:"date"` // "2006-01-02"
}

// Progression holds the scalar progression fields owned by the resource ledger.
type Progression struct {
	Coins         int        `json:"coins"`
	Tickets       int        `json:"tickets"`
	Stamina       int        `json:"stamina"`
	VIP           bool       `json:"vip"`
	VIPExpiresAt  *time.Time `json:"vip_expires_at,omitempty"`
	LastLoginDate string     `json:"last_login_date"` // date the login bonus was last granted

	DailyCounters map[string]*DailyCounter `json:"daily_counters"`

	TotalScans          int     `json:"total_scans"`
	TotalQuizzes        int     `json:"total_quizzes"`
	TotalCorrectAnswers int     `json:"total_correct_answers"`
	TotalDistance       float64 `json:"total_distance"`
}

// InventoryEntry is one owned item stack. Qty is always 1..MaxStack;
// a stack that would reach 0 is removed from the inventory instead.
type InventoryEntry struct {
	ItemID     string    `json:"item_id"`
	Qty        int       `json:"qty"`
	ObtainedAt time.Time `json:"obtained_at"`
}

// GachaPity holds the two monotonic pity counters. Each resets to 0
// exactly when a pull yields that rarity or higher.
type GachaPity struct {
	SRCounter  int `json:"sr_counter"`
	SSRCounter int `json:"ssr_counter"`
}

// WordEnemy is one enemy word inside a scan's pool.
// HP goes 3 → 0 in steps of one; 0 is the terminal "captured" state.
type WordEnemy struct {
	Word         string   `json:"word"`
	Meaning      string   `json:"meaning"`
	PartOfSpeech string   `json:"part_of_speech,omitempty"`
	HP           int      `json:"hp"`
	Asked        bool     `json:"asked"`
	WrongCount   int      `json:"wrong_count"`
	Variants     []string `json:"variants,omitempty"`
	Example      string   `json:"example,omitempty"`
}

// AdventureSnapshot is an immutable end-of-session summary for a scan.
// Once written it overrides live recomputation for display, so progress
// bars never rewind after a partial re-exploration.
type AdventureSnapshot struct {
	Captured  int       `json:"captured"`
	Defeated  int       `json:"defeated"`
	Remaining int       `json:"remaining"`
	Total     int       `json:"total"`
	TakenAt   time.Time `json:"taken_at"`
}

// WordScan is the word pool produced by one scan event.
// Active holds indices into Words; ActiveTotal is frozen at refill time
// and does not change as individual words are captured or defeated.
type WordScan struct {
	ID          string             `json:"id"`
	Title       string             `json:"title,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	Words       []WordEnemy        `json:"words"`
	Active      []int              `json:"active"`
	ActiveTotal int                `json:"active_total"`
	Snapshot    *AdventureSnapshot `json:"snapshot,omitempty"`
}

// DexEntry is a word's permanent record in the cross-scan index.
// A word is registered the moment it becomes a question candidate,
// independent of whether it is later answered correctly.
type DexEntry struct {
	Word       string     `json:"word"`
	Meaning    string     `json:"meaning"`
	FirstSeen  time.Time  `json:"first_seen"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

// UserState is the full persisted state tree for one user.
type UserState struct {
	Version int    `json:"version"`
	UserID  string `json:"user_id"`

	Progression Progression          `json:"progression"`
	Inventory   []InventoryEntry     `json:"inventory"`
	Pity        GachaPity            `json:"pity"`
	Scans       map[string]*WordScan `json:"scans"`
	Dex         map[string]*DexEntry `json:"dex"`

	QuizHistory        []HistoryRecord `json:"quiz_history"`
	TranslationHistory []HistoryRecord `json:"translation_history"`
}

// NewUserState returns an empty state tree for the given user.
func NewUserState(userID string) *UserState {
	return &UserState{
		Version: StateVersion,
		UserID:  userID,
		Progression: Progression{
			DailyCounters: make(map[string]*DailyCounter),
		},
		Scans: make(map[string]*WordScan),
		Dex:   make(map[string]*DexEntry),
	}
}

// StateVersion is the current snapshot schema version.
const StateVersion = 1
