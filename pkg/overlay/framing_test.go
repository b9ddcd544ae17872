package overlay

import (
	"bytes"
	"testing"
)

func TestFramingRoundTripsSmallAndLargeMessages(t *testing.T) {
	var transport bytes.Buffer
	encoder := NewEncoder(&transport)
	decoder := NewDecoder(&transport)

	messages := [][]byte{
		[]byte(`{"hello":"world"}`),
		make([]byte, reusableBufferSize+1024),
	}
	for i := range messages[1] {
		messages[1][i] = byte(i)
	}

	for _, msg := range messages {
		if err := encoder.Encode(msg); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	for _, want := range messages {
		got, err := decoder.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("decoded payload did not match: got %d bytes, want %d bytes", len(got), len(want))
		}
	}
}

func TestEncodeRejectsOversizedMessage(t *testing.T) {
	var transport bytes.Buffer
	encoder := NewEncoder(&transport)
	if err := encoder.Encode(make([]byte, maximumMessageSize+1)); err == nil {
		t.Fatal("expected an error encoding a message over the size limit")
	}
}
