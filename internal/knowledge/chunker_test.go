package knowledge

import (
	"strings"
	"testing"
)

func TestChunker_EmptyInput(t *testing.T) {
	var c Chunker
	for _, in := range []string{"", "   ", "\n\n\n"} {
		if got := c.Split(in); got != nil {
			t.Errorf("Split(%q) = %v, want nil", in, got)
		}
	}
}

func TestChunker_SingleParagraph(t *testing.T) {
	var c Chunker
	got := c.Split("um parágrafo curto sobre horários de atendimento")
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0] != "um parágrafo curto sobre horários de atendimento" {
		t.Errorf("chunk = %q", got[0])
	}
}

func TestChunker_PacksParagraphsUpToMax(t *testing.T) {
	c := Chunker{MaxSize: 30, Overlap: 5}
	text := "aaaa aaaa\n\nbbbb bbbb\n\ncccc cccc\n\ndddd dddd"

	got := c.Split(text)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d: %v", len(got), got)
	}
	for i, chunk := range got {
		if len([]rune(chunk)) > 30 {
			t.Errorf("chunk %d exceeds max size: %q", i, chunk)
		}
	}
	// No text lost
	joined := strings.Join(got, " ")
	for _, para := range []string{"aaaa aaaa", "bbbb bbbb", "cccc cccc", "dddd dddd"} {
		if !strings.Contains(joined, para) {
			t.Errorf("paragraph %q missing from chunks", para)
		}
	}
}

func TestChunker_OversizedParagraphSplitsWithOverlap(t *testing.T) {
	c := Chunker{MaxSize: 20, Overlap: 5}
	long := strings.Repeat("x", 50)

	got := c.Split(long)
	if len(got) < 3 {
		t.Fatalf("expected hard split into >=3 chunks, got %d", len(got))
	}

	total := 0
	for i, chunk := range got {
		if len([]rune(chunk)) > 20 {
			t.Errorf("chunk %d exceeds max size: %d runes", i, len([]rune(chunk)))
		}
		total += len(chunk)
	}
	// Overlap means the sum exceeds the original length
	if total <= 50 {
		t.Errorf("expected overlapping chunks, total runes = %d", total)
	}
}

func TestChunker_UnicodeSafe(t *testing.T) {
	c := Chunker{MaxSize: 10, Overlap: 2}
	got := c.Split(strings.Repeat("ação", 10))
	for i, chunk := range got {
		if !strings.HasPrefix(chunk, "a") && !strings.HasPrefix(chunk, "ç") && !strings.HasPrefix(chunk, "ã") && !strings.HasPrefix(chunk, "o") {
			t.Errorf("chunk %d starts with unexpected content: %q", i, chunk)
		}
		if strings.Contains(chunk, "�") {
			t.Errorf("chunk %d contains replacement rune, split broke a codepoint: %q", i, chunk)
		}
	}
}
