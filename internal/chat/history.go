package chat

import "ragchat/internal/models"

// dedupeSummaries keeps the first entry for every id, preserving order.
func dedupeSummaries(in []models.Summary) []models.Summary {
	out := make([]models.Summary, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

func prependSummary(history []models.Summary, s models.Summary) []models.Summary {
	out := make([]models.Summary, 0, len(history)+1)
	out = append(out, s)
	return append(out, removeSummary(history, s.ID)...)
}

func removeSummary(history []models.Summary, id string) []models.Summary {
	out := make([]models.Summary, 0, len(history))
	for _, s := range history {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

func renameSummaryID(history []models.Summary, from, to string) []models.Summary {
	out := make([]models.Summary, len(history))
	for i, s := range history {
		if s.ID == from {
			s.ID = to
		}
		out[i] = s
	}
	return dedupeSummaries(out)
}

func copyMessages(in []models.Message) []models.Message {
	if in == nil {
		return nil
	}
	out := make([]models.Message, len(in))
	for i, m := range in {
		m.Sources = cloneStrings(m.Sources)
		m.Content = cloneStrings(m.Content)
		out[i] = m
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
