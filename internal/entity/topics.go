package entity

import (
	"strings"
)

// agendaHeaders open the block that lists the items handled in a sitting.
var agendaHeaders = []string{
	"本日の会議に付した案件",
	"本日の会議に付した事件",
	"本日の会議に付した議案",
}

// itemMarkers prefix a single agenda item within the block.
var itemMarkers = []string{"一、", "一 ", "○"}

// ExtractTopics pulls agenda items out of the opening speech of a meeting.
// Only lines inside an agenda block are returned, in order and deduplicated.
func ExtractTopics(firstSpeech string) []string {
	var (
		topics  []string
		seen    = make(map[string]struct{})
		inBlock bool
	)
	for _, raw := range strings.Split(firstSpeech, "\n") {
		line := strings.TrimSpace(strings.ReplaceAll(raw, "　", " "))
		if isAgendaHeader(line) {
			inBlock = true
			continue
		}
		if !inBlock {
			continue
		}
		if line == "" || strings.HasPrefix(line, "━") || strings.HasPrefix(line, "─") {
			if len(topics) > 0 {
				inBlock = false
			}
			continue
		}
		topic, ok := trimItemMarker(line)
		if !ok {
			// A continuation line without a marker ends the block.
			inBlock = false
			continue
		}
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics
}

func isAgendaHeader(line string) bool {
	for _, h := range agendaHeaders {
		if strings.Contains(line, h) {
			return true
		}
	}
	return false
}

func trimItemMarker(line string) (string, bool) {
	for _, m := range itemMarkers {
		if strings.HasPrefix(line, m) {
			topic := strings.TrimSpace(strings.TrimPrefix(line, m))
			return topic, topic != ""
		}
	}
	return "", false
}
