package resolver

import (
	"testing"
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestAlternativeTitlesSeasonRewrites(t *testing.T) {
	got := AlternativeTitles("Attack on Titan S3")
	if !contains(got, "Attack on Titan 3rd Season") {
		t.Fatalf("missing Nth Season rewrite: %v", got)
	}
	if !contains(got, "Attack on Titan Season 3") {
		t.Fatalf("missing Season N rewrite: %v", got)
	}
}

func TestAlternativeTitlesSeasonOneStripped(t *testing.T) {
	got := AlternativeTitles("Title S1")
	if !contains(got, "Title") {
		t.Fatalf("S1 marker should be dropped: %v", got)
	}
}

func TestAlternativeTitlesOrdinals(t *testing.T) {
	got := AlternativeTitles("Overlord S2")
	if !contains(got, "Overlord 2nd Season") {
		t.Fatalf("missing 2nd Season: %v", got)
	}
	got = AlternativeTitles("Mushoku S4")
	if !contains(got, "Mushoku 4th Season") {
		t.Fatalf("missing 4th Season: %v", got)
	}
}

func TestAlternativeTitlesPunctuationAndTV(t *testing.T) {
	got := AlternativeTitles("Re:Zero - Starting Life (TV)")
	if len(got) < 2 {
		t.Fatalf("expected punctuation-stripped variants: %v", got)
	}
	if got[0] != "Re:Zero - Starting Life (TV)" {
		t.Fatalf("original must stay first: %v", got)
	}
	if !contains(got, "ReZero  Starting Life (TV)") && !contains(got, "ReZero Starting Life (TV)") {
		t.Fatalf("missing punctuation-stripped variant: %v", got)
	}
}

func TestAlternativeTitlesPlainTitleUnchanged(t *testing.T) {
	got := AlternativeTitles("Frieren")
	if len(got) != 1 || got[0] != "Frieren" {
		t.Fatalf("plain title should yield itself only: %v", got)
	}
}
