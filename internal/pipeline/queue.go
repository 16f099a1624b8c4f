package pipeline

// unit is one (sub-question, backend) piece of work.
type unit struct {
	Question string
	Backend  string
}

// buildQueue pairs every sub-question with every requested backend the
// gateway knows, question-major. Unknown and repeated backends are skipped.
// An empty queue falls back to the root question on the fallback backend.
func buildQueue(subs, backends []string, known func(string) bool, root, fallback string) []unit {
	usable := make([]string, 0, len(backends))
	seen := make(map[string]bool, len(backends))
	for _, b := range backends {
		if seen[b] || !known(b) {
			continue
		}
		seen[b] = true
		usable = append(usable, b)
	}

	queue := make([]unit, 0, len(subs)*len(usable))
	for _, q := range subs {
		for _, b := range usable {
			queue = append(queue, unit{Question: q, Backend: b})
		}
	}
	if len(queue) == 0 {
		queue = append(queue, unit{Question: root, Backend: fallback})
	}
	return queue
}
