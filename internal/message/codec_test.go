package message

import (
	"reflect"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"empty", Message{}},
		{"text only", Message{TextList: []string{"one", "two"}}},
		{"url only", Message{URL: "https://example.com/a?b=1&c=2"}},
		{"geo", Message{Lat: "37.7749", Lng: "-122.4194", LocationName: "Coffee Shop"}},
		{"everything", Message{
			TextList:     []string{"line <1>", ""},
			URL:          "http://example.com",
			Lat:          "1",
			Lng:          "2",
			LocationName: "Home",
			From:         "+15551234",
			ReceivedAt:   1700000000000,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decode(Encode(tt.msg))
			if !ok {
				t.Fatal("Decode() ok = false")
			}
			if !reflect.DeepEqual(got, tt.msg) {
				t.Errorf("round trip = %+v, want %+v", got, tt.msg)
			}
		})
	}
}

func TestEncodeSparseURL(t *testing.T) {
	got := Encode(Message{URL: "http://example.com"})
	want := Prefix + `{"url":"http://example.com"}` + "\nhttp://example.com"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeDoesNotEscapeHTML(t *testing.T) {
	got := Encode(Message{URL: "https://x.test/?a=1&b=2"})
	if strings.Contains(got, `\u0026`) || !strings.Contains(got, "a=1&b=2") {
		t.Errorf("Encode() escaped ampersand: %q", got)
	}
}

func TestEncodeWithoutURLHasNoSuffix(t *testing.T) {
	got := Encode(Message{Lat: "1", Lng: "2"})
	if strings.Contains(got, "\n") {
		t.Errorf("Encode() = %q, want single line", got)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		wire   string
		want   Message
		wantOK bool
	}{
		{"empty", "", Message{}, false},
		{"prefix only", Prefix, Message{}, false},
		{"bad json", Prefix + "{not json", Message{}, false},
		{"json null", Prefix + "null", Message{}, false},
		{"plain text", "hello there", Message{}, false},
		{"no prefix is lenient", `{"url":"http://a.b"}`, Message{URL: "http://a.b"}, true},
		{"suffix fills url", Prefix + `{"text":["hi"]}` + "\nhttp://a.b", Message{TextList: []string{"hi"}, URL: "http://a.b"}, true},
		{"json url wins", Prefix + `{"url":"http://json"}` + "\nhttp://suffix", Message{URL: "http://json"}, true},
		{"numeric coordinates", Prefix + `{"lat":37.5,"lng":-122}`, Message{Lat: "37.5", Lng: "-122"}, true},
		{"empty suffix", Prefix + `{"locationName":"X"}` + "\n", Message{LocationName: "X"}, true},
		{"text not an array", Prefix + `{"text":"solo","url":"http://x"}`, Message{URL: "http://x"}, true},
		{"text null", Prefix + `{"text":null,"lat":"1","lng":"2"}`, Message{Lat: "1", Lng: "2"}, true},
		{"mixed text items", Prefix + `{"text":["a",2,true]}`, Message{TextList: []string{"a", "2", "true"}}, true},
		{"receivedAt as string", Prefix + `{"receivedAt":"17","from":"555"}`, Message{From: "555"}, true},
		{"receivedAt as float", Prefix + `{"receivedAt":1.7e12}`, Message{ReceivedAt: 1700000000000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decode(tt.wire)
			if ok != tt.wantOK {
				t.Fatalf("Decode(%q) ok = %v, want %v", tt.wire, ok, tt.wantOK)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.wire, got, tt.want)
			}
		})
	}
}

func TestShouldIntercept(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{Prefix + `{"url":"x"}`, true},
		{Prefix, true},
		{`{"url":"x"}`, false},
		{"cobaltcomet{}", false},
		{" " + Prefix, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ShouldIntercept(tt.in); got != tt.want {
			t.Errorf("ShouldIntercept(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewURLMessage(t *testing.T) {
	tests := []struct {
		name  string
		title string
		text  string
		want  Message
	}{
		{
			name: "text and url",
			text: "Check this out\nhttp://example.com",
			want: Message{TextList: []string{"Check this out"}, URL: "http://example.com", LocationName: "Check this out"},
		},
		{
			name: "url only",
			text: "http://example.com",
			want: Message{URL: "http://example.com"},
		},
		{
			name: "embedded url cut at space",
			text: "see https://maps.app.goo.gl/abc for details",
			want: Message{URL: "https://maps.app.goo.gl/abc"},
		},
		{
			name: "last url wins",
			text: "http://one\nmiddle\nhttp://two",
			want: Message{TextList: []string{"middle"}, URL: "http://two", LocationName: "middle"},
		},
		{
			name:  "title overrides location name",
			title: "Blue Bottle",
			text:  "Great coffee\nhttps://maps.app.goo.gl/x",
			want:  Message{TextList: []string{"Great coffee"}, URL: "https://maps.app.goo.gl/x", LocationName: "Blue Bottle"},
		},
		{
			name: "crlf lines",
			text: "hello\r\nhttp://a.b\r\n",
			want: Message{TextList: []string{"hello", ""}, URL: "http://a.b", LocationName: "hello"},
		},
		{
			name: "empty",
			want: Message{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewURLMessage(tt.title, tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NewURLMessage() = %+v, want %+v", got, tt.want)
			}
			if got.From != "" || got.ReceivedAt != 0 {
				t.Error("outbound message carries inbound-only fields")
			}
		})
	}
}

func TestGeoMessageEndToEnd(t *testing.T) {
	wire := EncodeGeoMessage("37.7749", "-122.4194", "Coffee Shop")
	if !ShouldIntercept(wire) {
		t.Fatal("geo wire message not intercepted")
	}
	got, ok := Decode(wire)
	if !ok {
		t.Fatal("Decode() ok = false")
	}
	want := Message{Lat: "37.7749", Lng: "-122.4194", LocationName: "Coffee Shop"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode() = %+v, want %+v", got, want)
	}
	if len(got.TextList) != 0 || got.URL != "" {
		t.Error("geo message should have no text or url")
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"no link here", "", false},
		{"http://a.b", "http://a.b", true},
		{"go to https://x.y/z now", "https://x.y/z", true},
		{"tab\thttps://x.y\tafter", "https://x.y", true},
	}
	for _, tt := range tests {
		got, ok := ParseURL(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseURL(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
