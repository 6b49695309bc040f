package embedding

import (
	"reflect"
	"testing"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Title: Facial Recognition", []string{"title", "facial", "recognition"}},
		{"the bias of a model", []string{"bias", "model"}},
		{"PL 2338/2023, art. 5", []string{"pl", "2338", "2023", "art", "5"}},
		{"  ", []string{}},
	}
	for _, tt := range tests {
		got := Terms(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Terms(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths = %d %d %d", len(ids), len(attn), len(types))
	}
	if ids[0] != clsToken || ids[3] != sepToken {
		t.Errorf("ids = %v", ids)
	}
	if attn[3] != 1 || attn[4] != 0 {
		t.Errorf("attention = %v", attn)
	}

	again, _, _ := tok.Tokenize("HELLO world", 10)
	if !reflect.DeepEqual(ids, again) {
		t.Error("tokenization should ignore case")
	}
}

func TestSimpleTokenizer_truncates(t *testing.T) {
	ids, _, _ := (&SimpleTokenizer{}).Tokenize("a b c d e f g h", 4)
	if ids[0] != clsToken || ids[3] != sepToken {
		t.Errorf("ids = %v, want [CLS] a b [SEP]", ids)
	}
}
