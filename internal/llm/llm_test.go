package llm

import (
	"reflect"
	"testing"
)

func TestParseTileSelection(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		tileCount int
		want      []int
	}{
		{"simple", "1,4,7", 9, []int{1, 4, 7}},
		{"spaces", " 2 , 5 ", 9, []int{2, 5}},
		{"zero means none", "0", 9, nil},
		{"none keyword", "None", 9, nil},
		{"empty", "", 9, nil},
		{"out of range dropped", "3,12", 9, []int{3}},
		{"duplicates dropped", "2,2,3", 9, []int{2, 3}},
		{"garbage dropped", "1,foo,3", 9, []int{1, 3}},
		{"all garbage", "foo bar", 9, nil},
		{"negative dropped", "-1,2", 9, []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTileSelection(tt.input, tt.tileCount)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTileSelection(%q, %d) = %v, want %v", tt.input, tt.tileCount, got, tt.want)
			}
		})
	}
}

func TestParseJSONReply(t *testing.T) {
	var reading TextCaptchaReading

	raw := "Here is the result:\n```json\n{\"found\": true, \"placeholder\": \"Type the characters\", \"answer\": \"x7kq2\"}\n```"
	if err := parseJSONReply(raw, &reading); err != nil {
		t.Fatal(err)
	}
	if !reading.Found || reading.Answer != "x7kq2" {
		t.Errorf("unexpected reading: %+v", reading)
	}

	if err := parseJSONReply("no object here", &reading); err == nil {
		t.Error("expected error for reply without JSON object")
	}
}

func TestImagePartDataURL(t *testing.T) {
	part := imagePart("aGVsbG8=")
	if part.ImageURL == nil {
		t.Fatal("expected image URL part")
	}
	if part.ImageURL.URL != "data:image/jpeg;base64,aGVsbG8=" {
		t.Errorf("unexpected data URL %q", part.ImageURL.URL)
	}
}
