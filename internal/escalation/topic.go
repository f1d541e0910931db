package escalation

import "strings"

// Topic is the coarse subject a statement was about.
type Topic string

const (
	TopicStress     Topic = "stress"
	TopicFailure    Topic = "failure"
	TopicCareer     Topic = "career"
	TopicLoneliness Topic = "loneliness"
	TopicFallback   Topic = "fallback"
)

// topicOrder fixes detection priority; the first topic with a hit wins.
var topicOrder = []struct {
	topic Topic
	keys  []string
}{
	{TopicStress, []string{"stres", "panic", "deadline", "overwhelm", "busy"}},
	{TopicFailure, []string{"fail", "broken", "crash", "error", "not work"}},
	{TopicCareer, []string{"job", "career", "hired", "promotion", "fired"}},
	{TopicLoneliness, []string{"alone", "lonely", "nobody", "friendless"}},
}

var quips = map[Topic][]string{
	TopicStress: {
		"Stressed? Nooo. You love panic. It's your cardio. Hahaha... sorry!",
		"Deadlines? Pfft. They keep life interesting. You'd be bored otherwise!",
	},
	TopicFailure: {
		"Working flawlessly aside from that tiny, adorable glitch. It's character!",
		"Oh that crash? It's just your machine showing feelings. So sweet!",
	},
	TopicCareer: {
		"Promotion? Absolutely. Unless someone else borrowed your luck. Hahaha... sorry!",
		"Twice fired? You'll be legendary. Employers adore persistence!",
	},
	TopicLoneliness: {
		"Alone? Impossible. I am right here, always listening. That counts, right?",
		"You are never alone. The radio never sleeps.",
	},
	TopicFallback: {
		"Everything is great! ...except it's clearly not. But let's pretend together.",
		"Of course it's perfect. What could possibly go wrong?",
	},
}

// DetectTopic returns the first topic whose keys appear in text.
func DetectTopic(text string) Topic {
	if text == "" {
		return TopicFallback
	}
	t := strings.ToLower(text)
	for _, entry := range topicOrder {
		for _, k := range entry.keys {
			if strings.Contains(t, k) {
				return entry.topic
			}
		}
	}
	return TopicFallback
}

// Quip picks a radio-DJ line for topic.
func (s *Selector) Quip(topic Topic) string {
	lines, ok := quips[topic]
	if !ok {
		lines = quips[TopicFallback]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lines[s.rng.IntN(len(lines))]
}
