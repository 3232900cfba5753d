// Package keywords implements the per-tenant keyword filter and the editing
// operations on a keyword set.
package keywords

import (
	"strings"

	"github.com/fiffu/feedwatch/lib/models"
)

// Match reports whether any keyword occurs as a literal, case-insensitive
// substring of the entry's title, body or content. An empty set matches all.
func Match(entry models.Entry, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(strings.Join([]string{entry.Title, entry.BodyText, entry.ContentText}, " "))
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Normalize trims keywords, drops empty ones and removes case-insensitive
// duplicates, keeping the first spelling.
func Normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// Add appends the keywords not already present and returns the new set along
// with the keywords that were actually added.
func Add(current, keywords []string) (result, added []string) {
	result = Normalize(current)
	seen := make(map[string]struct{}, len(result))
	for _, kw := range result {
		seen[strings.ToLower(kw)] = struct{}{}
	}
	for _, kw := range Normalize(keywords) {
		if _, ok := seen[strings.ToLower(kw)]; ok {
			continue
		}
		seen[strings.ToLower(kw)] = struct{}{}
		result = append(result, kw)
		added = append(added, kw)
	}
	return result, added
}

// Remove drops the given keywords, compared case-insensitively, and returns
// the new set along with the keywords that were actually removed.
func Remove(current, keywords []string) (result, removed []string) {
	drop := make(map[string]struct{}, len(keywords))
	for _, kw := range Normalize(keywords) {
		drop[strings.ToLower(kw)] = struct{}{}
	}
	result = make([]string, 0, len(current))
	for _, kw := range current {
		if _, ok := drop[strings.ToLower(strings.TrimSpace(kw))]; ok {
			removed = append(removed, kw)
			continue
		}
		result = append(result, kw)
	}
	return result, removed
}

// Defaults returns a fresh copy of the keyword set a tenant starts with after
// a reset.
func Defaults() []string {
	return append([]string(nil), defaultKeywords...)
}

var defaultKeywords = []string{
	"AI healthcare",
	"medical AI",
	"cancer detection",
	"radiology AI",
	"MRI AI",
	"CT scan AI",
	"deep learning medical",
	"AI diagnosis",
	"AI genomics",
	"AI surgery",
	"robotic surgery AI",
	"biomedical AI",
	"AI drug discovery",
	"AI imaging",
	"AI in medicine",
	"AI medical research",
	"AI patient care",
	"machine learning healthcare",
	"neural networks medical",
	"AI-assisted diagnosis",
	"AI healthtech",
	"AI medical analysis",
	"AI-powered radiology",
	"AI pathology",
	"medical deep learning",
	"intelligence artificielle médicale",
	"santé IA",
	"diagnostic IA",
	"IA médicale",
	"apprentissage profond médical",
	"détection du cancer IA",
	"radiologie IA",
	"IRM IA",
	"scan médical IA",
	"diagnostic assisté par IA",
	"réseaux neuronaux santé",
	"analyse médicale IA",
	"robotique chirurgicale IA",
	"pathologie IA",
	"imagerie médicale IA",
	"technologie médicale IA",
	"traitement médical IA",
	"modèles IA santé",
	"chirurgie assistée par IA",
	"IA",
}
