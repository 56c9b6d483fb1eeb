package honeypot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ruggedMint builds a mint buffer whose extension region carries the
// given marker bytes.
func ruggedMint(marker byte) []byte {
	data := make([]byte, 83+64)
	for i := 83; i < len(data); i++ {
		data[i] = marker
	}
	return data
}

func TestRecordRug_LearnsPattern(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	sig := tr.RecordRug("mint1", ruggedMint(0xAB))

	require.NotNil(t, sig)
	assert.Equal(t, 1, tr.PatternCount())
	assert.Equal(t, 1, sig.HitCount)
	assert.InDelta(t, 0.3, sig.Confidence, 0.001)
	assert.Len(t, sig.Pattern, DefaultConfig().PatternBytes)
}

func TestRecordRug_RepeatHitsRaiseConfidence(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	var sig *Signature
	for i := 0; i < 5; i++ {
		sig = tr.RecordRug("mint1", ruggedMint(0xAB))
	}

	require.NotNil(t, sig)
	assert.Equal(t, 1, tr.PatternCount(), "identical bytes dedupe into one pattern")
	assert.Equal(t, 5, sig.HitCount)
	assert.InDelta(t, 0.9, sig.Confidence, 0.001)
}

func TestRecordRug_ShortBufferTeachesNothing(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	assert.Nil(t, tr.RecordRug("mint1", make([]byte, 82)))
	assert.Equal(t, 0, tr.PatternCount())
}

func TestScan_MatchesLearnedPattern(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.RecordRug("mint1", ruggedMint(0xAB))

	match := tr.Scan(ruggedMint(0xAB))
	require.NotNil(t, match)
	assert.Equal(t, 1, match.HitCount)

	assert.Nil(t, tr.Scan(ruggedMint(0xCD)), "different bytes must not match")
	assert.Nil(t, tr.Scan(nil))
}

func TestScan_RespectsConfidenceGate(t *testing.T) {
	config := DefaultConfig()
	config.MinConfidence = 0.8
	tr := NewTracker(config)

	tr.RecordRug("mint1", ruggedMint(0xAB))
	assert.Nil(t, tr.Scan(ruggedMint(0xAB)), "single-hit pattern below gate")

	for i := 0; i < 5; i++ {
		tr.RecordRug("mint1", ruggedMint(0xAB))
	}
	assert.NotNil(t, tr.Scan(ruggedMint(0xAB)))
}

func TestMaxPatternsEvictsStalest(t *testing.T) {
	config := DefaultConfig()
	config.MaxPatterns = 3
	tr := NewTracker(config)

	for i := 0; i < 5; i++ {
		tr.RecordRug("mint1", ruggedMint(byte(i)))
	}
	assert.Equal(t, 3, tr.PatternCount())
}

func TestStats(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.RecordRug("mint1", ruggedMint(0xAB))
	tr.Scan(ruggedMint(0xAB))

	stats := tr.Stats()
	assert.Equal(t, 1, stats.Patterns)
	assert.Equal(t, int64(1), stats.RugsRecorded)
	assert.Equal(t, int64(1), stats.ScanHits)
}
