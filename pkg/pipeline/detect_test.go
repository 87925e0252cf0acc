package pipeline

import (
	"context"
	"testing"
)

func TestKeywordDetector_PriceObjection(t *testing.T) {
	d := NewKeywordDetector()

	cand, hit := d.Detect("La verdad está muy caro para mí", nil)
	if !hit {
		t.Fatalf("expected a price candidate")
	}
	if cand.Type != CandidatePrice {
		t.Fatalf("type=%q, want price", cand.Type)
	}
	if cand.Matched != "caro" {
		t.Fatalf("matched=%q, want caro", cand.Matched)
	}
}

func TestKeywordDetector_NoHit(t *testing.T) {
	d := NewKeywordDetector()

	for _, text := range []string{"", "   ", "me parece bien, continuemos"} {
		if _, hit := d.Detect(text, nil); hit {
			t.Fatalf("unexpected candidate for %q", text)
		}
	}
}

func TestKeywordDetector_PhraseScoresHigherThanKeyword(t *testing.T) {
	d := NewKeywordDetector()

	kw, _ := d.Detect("es caro", nil)
	phrase, _ := d.Detect("no puedo pagar eso", nil)
	if phrase.Score <= kw.Score {
		t.Fatalf("phrase score=%v keyword score=%v, want phrase higher", phrase.Score, kw.Score)
	}
}

func TestKeywordDetector_ContextBoostOnRepetition(t *testing.T) {
	d := NewKeywordDetector()

	plain, _ := d.Detect("el precio no me convence", nil)
	boosted, _ := d.Detect("el precio no me convence", []string{
		"hablamos del precio la semana pasada",
		"el precio no me convence",
	})
	if boosted.Score <= plain.Score {
		t.Fatalf("boosted=%v plain=%v, want boost with repeated context", boosted.Score, plain.Score)
	}
}

func TestKeywordDetector_PicksHighestScoringType(t *testing.T) {
	d := NewKeywordDetector()

	cand, hit := d.Detect("no me interesa y además no lo uso, aunque el precio también", nil)
	if !hit {
		t.Fatalf("expected candidate")
	}
	if cand.Type != CandidateNeed {
		t.Fatalf("type=%q, want need (two keyword hits)", cand.Type)
	}
}

func TestThresholdClassifier_Confirm(t *testing.T) {
	c := &ThresholdClassifier{}

	ok, err := c.Confirm(context.Background(), Candidate{Type: CandidatePrice, Score: 1.5}, nil)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want confirmed", ok, err)
	}

	strict := &ThresholdClassifier{MinScore: 2.0}
	ok, err = strict.Confirm(context.Background(), Candidate{Type: CandidatePrice, Score: 1.5}, nil)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v, want rejected below min score", ok, err)
	}
}

func TestStaticRetriever_KnownAndUnknownTypes(t *testing.T) {
	r := NewStaticRetriever()

	snippets, err := r.Retrieve(context.Background(), Candidate{Type: CandidatePrice})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(snippets) == 0 {
		t.Fatalf("no snippets for price")
	}

	snippets, err = r.Retrieve(context.Background(), Candidate{Type: "weather"})
	if err != nil {
		t.Fatalf("Retrieve unknown: %v", err)
	}
	if len(snippets) != 0 {
		t.Fatalf("snippets=%v for unknown type, want none", snippets)
	}
}

func TestTemplateSuggester_AlwaysProducesText(t *testing.T) {
	s := TemplateSuggester{}

	for _, typ := range []string{CandidatePrice, CandidateTrust, "weather"} {
		text, err := s.Suggest(context.Background(), Candidate{Type: typ}, nil, nil)
		if err != nil {
			t.Fatalf("Suggest(%s): %v", typ, err)
		}
		if text == "" {
			t.Fatalf("empty suggestion for %s", typ)
		}
	}
}
