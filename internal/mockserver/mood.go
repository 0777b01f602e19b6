package mockserver

import (
	"strings"
	"sync"
	"time"
)

// Mood labels, most positive first.
var moodLabels = []string{"Very Happy", "Happy", "Neutral", "Sad", "Upset"}

var (
	positiveWords  = []string{"happy", "good", "great", "thanks", "thank you", "nice", "glad", "fun", "khush", "acha", "shukriya"}
	strongPositive = []string{"excellent", "amazing", "love", "fantastic", "perfect"}
	negativeWords  = []string{"sad", "bad", "tired", "lonely", "bored", "upset", "udaas", "bura", "pareshan"}
	strongNegative = []string{"angry", "hate", "terrible", "worst", "depressed"}
)

// moodOf scores text against a small lexicon.
func moodOf(text string) string {
	lower := strings.ToLower(text)
	score := 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			score++
		}
	}
	for _, w := range strongPositive {
		if strings.Contains(lower, w) {
			score += 2
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			score--
		}
	}
	for _, w := range strongNegative {
		if strings.Contains(lower, w) {
			score -= 2
		}
	}
	switch {
	case score >= 3:
		return "Very Happy"
	case score > 0:
		return "Happy"
	case score == 0:
		return "Neutral"
	case score >= -2:
		return "Sad"
	default:
		return "Upset"
	}
}

type moodEntry struct {
	mood string
	at   time.Time
}

// moodHistory records the mood of each chat message per user.
type moodHistory struct {
	mu      sync.Mutex
	entries map[int][]moodEntry
}

func newMoodHistory() *moodHistory {
	return &moodHistory{entries: make(map[int][]moodEntry)}
}

func (h *moodHistory) add(userID int, mood string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[userID] = append(h.entries[userID], moodEntry{mood: mood, at: at})
}

// counts returns labels and counts for moods recorded since the cutoff,
// ordered from most positive to most negative. Moods with no entries are omitted.
func (h *moodHistory) counts(userID int, since time.Time) ([]string, []float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tally := make(map[string]int)
	for _, e := range h.entries[userID] {
		if !e.at.Before(since) {
			tally[e.mood]++
		}
	}
	labels := []string{}
	values := []float64{}
	for _, label := range moodLabels {
		if n := tally[label]; n > 0 {
			labels = append(labels, label)
			values = append(values, float64(n))
		}
	}
	return labels, values
}
