package stream

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"

	"github.com/kivara1314/kivara/internal/agent"
	"github.com/kivara1314/kivara/internal/pipeline"
)

const (
	HeaderSession   = "Kivara-Session"
	HeaderSeq       = "Kivara-Seq"
	HeaderFs        = "Kivara-Fs"
	HeaderGender    = "Kivara-Gender"
	HeaderCycleDay  = "Kivara-Cycle-Day"
	HeaderNominalHR = "Kivara-Nominal-Hr"
)

var ErrMalformed = errors.New("malformed wave message")

var validate = validator.New()

// WaveBatch is one window of PPG samples for one session. On the wire the
// samples travel as little-endian float32 and the metadata as headers.
type WaveBatch struct {
	SessionID string `validate:"required"`
	Seq       uint64
	Fs        int     `validate:"gt=0"`
	Gender    string  `validate:"oneof=M F"`
	CycleDay  int     `validate:"min=1,max=28"`
	NominalHR float64 `validate:"gte=0"`
	Samples   []float64
}

// Encode builds the NATS message for subject.
func (b WaveBatch) Encode(subject string) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Header.Set(HeaderSession, b.SessionID)
	msg.Header.Set(HeaderSeq, strconv.FormatUint(b.Seq, 10))
	msg.Header.Set(HeaderFs, strconv.Itoa(b.Fs))
	msg.Header.Set(HeaderGender, b.Gender)
	msg.Header.Set(HeaderCycleDay, strconv.Itoa(b.CycleDay))
	msg.Header.Set(HeaderNominalHR, strconv.FormatFloat(b.NominalHR, 'f', -1, 64))

	msg.Data = make([]byte, 4*len(b.Samples))
	for i, v := range b.Samples {
		binary.LittleEndian.PutUint32(msg.Data[i*4:], math.Float32bits(float32(v)))
	}
	return msg
}

// DecodeWave parses a message produced by Encode.
func DecodeWave(msg *nats.Msg) (WaveBatch, error) {
	if len(msg.Data)%4 != 0 {
		return WaveBatch{}, fmt.Errorf("%w: payload of %d bytes is not float32 aligned", ErrMalformed, len(msg.Data))
	}
	if msg.Header == nil {
		return WaveBatch{}, fmt.Errorf("%w: missing headers", ErrMalformed)
	}

	b := WaveBatch{
		SessionID: msg.Header.Get(HeaderSession),
		Gender:    msg.Header.Get(HeaderGender),
	}
	var err error
	if b.Seq, err = strconv.ParseUint(headerOr(msg, HeaderSeq, "0"), 10, 64); err != nil {
		return WaveBatch{}, fmt.Errorf("%w: %s: %v", ErrMalformed, HeaderSeq, err)
	}
	if b.Fs, err = strconv.Atoi(headerOr(msg, HeaderFs, strconv.Itoa(pipeline.DefaultFs))); err != nil {
		return WaveBatch{}, fmt.Errorf("%w: %s: %v", ErrMalformed, HeaderFs, err)
	}
	if b.CycleDay, err = strconv.Atoi(headerOr(msg, HeaderCycleDay, "1")); err != nil {
		return WaveBatch{}, fmt.Errorf("%w: %s: %v", ErrMalformed, HeaderCycleDay, err)
	}
	if b.NominalHR, err = strconv.ParseFloat(headerOr(msg, HeaderNominalHR, "0"), 64); err != nil {
		return WaveBatch{}, fmt.Errorf("%w: %s: %v", ErrMalformed, HeaderNominalHR, err)
	}
	if b.Gender == "" {
		b.Gender = string(agent.Male)
	}
	if g, err := agent.ParseGender(b.Gender); err == nil {
		b.Gender = string(g)
	}

	if err := validate.Struct(b); err != nil {
		return WaveBatch{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	b.Samples = make([]float64, len(msg.Data)/4)
	for i := range b.Samples {
		b.Samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(msg.Data[i*4:])))
	}
	return b, nil
}

// Input converts the batch for the pipeline.
func (b WaveBatch) Input() pipeline.Input {
	return pipeline.Input{
		SessionID: b.SessionID,
		Signal:    b.Samples,
		Fs:        b.Fs,
		Gender:    agent.Gender(b.Gender),
		CycleDay:  b.CycleDay,
		NominalHR: b.NominalHR,
	}
}

// PublishResult sends a decision record as JSON.
func PublishResult(nc *nats.Conn, subject string, res pipeline.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nc.Publish(subject, data)
}

func headerOr(msg *nats.Msg, key, fallback string) string {
	if v := msg.Header.Get(key); v != "" {
		return v
	}
	return fallback
}
