package zremote

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg Message) {
	t.Helper()
	frame, err := Encode(msg)
	require.NoError(t, err)
	got, err := Decode(frame)
	require.NoError(t, err, string(frame))
	assert.Equal(t, msg, got, string(frame))
}

func TestRoundTripControl(t *testing.T) {
	params := "timeout=1"
	encoding := EncodingJSON

	msgs := []Message{
		&SessionMsg{ID: "s-1"},
		&OpenSessionMsg{},
		&CloseSessionMsg{},
		&SessionReplyMsg{ID: "s-1"},
		&GetMsg{KeyExpr: "a/b", Handler: FifoChannel(256), ID: "g-1"},
		&GetMsg{
			KeyExpr:           "a/**",
			Parameters:        &params,
			Handler:           RingChannel(8),
			ID:                "g-2",
			Consolidation:     ptr(ConsolidationLatest),
			CongestionControl: ptr(CongestionBlock),
			Priority:          ptr(PriorityRealTime),
			Express:           ptr(true),
			Encoding:          &encoding,
			Payload:           ZBytes("payload"),
			Attachment:        ZBytes{},
		},
		&GetFinishedMsg{ID: "g-1"},
		&PutMsg{KeyExpr: "a/b", Payload: ZBytes{}},
		&PutMsg{
			KeyExpr:           "a/b",
			Payload:           ZBytes{0, 1, 255},
			Encoding:          &encoding,
			CongestionControl: ptr(CongestionDrop),
			Priority:          ptr(PriorityBackground),
			Express:           ptr(false),
			Attachment:        ZBytes("att"),
		},
		&DeleteMsg{KeyExpr: "a/b"},
		&DeleteMsg{
			KeyExpr:           "a/b",
			CongestionControl: ptr(CongestionBlock),
			Priority:          ptr(PriorityData),
			Express:           ptr(true),
			Attachment:        ZBytes("att"),
		},
		&DeclareSubscriberMsg{KeyExpr: "a/*", Handler: FifoChannel(0), ID: "sub-1"},
		&SubscriberAckMsg{ID: "sub-1"},
		&UndeclareSubscriberMsg{ID: "sub-1"},
		&DeclarePublisherMsg{KeyExpr: "a/b", ID: "pub-1"},
		&DeclarePublisherMsg{
			KeyExpr:           "a/b",
			Encoding:          &encoding,
			CongestionControl: ptr(CongestionBlock),
			Priority:          ptr(PriorityDataHigh),
			Reliability:       ptr(BestEffort),
			Express:           ptr(true),
			ID:                "pub-1",
		},
		&UndeclarePublisherMsg{ID: "pub-1"},
		&DeclareQueryableMsg{KeyExpr: "a/**", ID: "qa-1", Complete: true},
		&UndeclareQueryableMsg{ID: "qa-1"},
	}
	for _, msg := range msgs {
		roundTrip(t, msg)
	}
}

func TestRoundTripData(t *testing.T) {
	ts := "7386690599959157260/33"
	encoding := EncodingString

	msgs := []Message{
		&PublisherPutMsg{ID: "pub-1", Payload: ZBytes("v")},
		&PublisherPutMsg{ID: "pub-1", Payload: ZBytes("v"), Attachment: ZBytes("a"), Encoding: &encoding},
		&SampleMsg{Sample: SampleWS{KeyExpr: "a/b", Value: ZBytes{}}, SubscriberID: "sub-1"},
		&SampleMsg{
			Sample: SampleWS{
				KeyExpr:           "a/b",
				Value:             ZBytes{1, 2, 3},
				Kind:              SampleKindDelete,
				Encoding:          EncodingBytes,
				Timestamp:         &ts,
				CongestionControl: CongestionBlock,
				Priority:          PriorityData,
				Express:           true,
				Attachment:        ZBytes("a"),
			},
			SubscriberID: "sub-1",
		},
		&GetReplyMsg{QueryID: "g-1", Result: ReplyResult{Ok: &SampleWS{KeyExpr: "a/b", Value: ZBytes("v")}}},
		&GetReplyMsg{QueryID: "g-1", Result: ReplyResult{Err: &ReplyErrorWS{Payload: ZBytes("e"), Encoding: EncodingString}}},
		&GetReplyMsg{QueryID: "g-1"},
		&QueryMsg{QueryableID: "qa-1", Query: QueryWS{QueryID: "q-1", KeyExpr: "a/b"}},
		&QueryMsg{QueryableID: "qa-1", Query: QueryWS{
			QueryID:    "q-1",
			KeyExpr:    "a/b",
			Parameters: "x=1",
			Encoding:   &encoding,
			Attachment: ZBytes("a"),
			Payload:    ZBytes("p"),
		}},
		&QueryReplyMsg{Reply: QueryReplyWS{QueryID: "q-1", Result: &QueryReplySample{KeyExpr: "a/b", Payload: ZBytes("v")}}},
		&QueryReplyMsg{Reply: QueryReplyWS{QueryID: "q-1", Result: &QueryReplyErr{Payload: ZBytes("e")}}},
		&QueryReplyMsg{Reply: QueryReplyWS{QueryID: "q-1", Result: &QueryReplyDelete{KeyExpr: "a/b"}}},
	}
	for _, msg := range msgs {
		roundTrip(t, msg)
	}
}

func TestEncodeWireShape(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{&OpenSessionMsg{}, `{"Control":"OpenSession"}`},
		{&CloseSessionMsg{}, `{"Control":"CloseSession"}`},
		{&SessionMsg{ID: "s"}, `{"Session":"s"}`},
		{&UndeclareSubscriberMsg{ID: "x"}, `{"Control":{"UndeclareSubscriber":"x"}}`},
		{&DeclareSubscriberMsg{KeyExpr: "a", Handler: RingChannel(4), ID: "x"},
			`{"Control":{"DeclareSubscriber":{"key_expr":"a","handler":{"Ring":4},"id":"x"}}}`},
		{&DeleteMsg{KeyExpr: "a"},
			`{"Control":{"Delete":{"key_expr":"a","congestion_control":null,"priority":null,"express":null,"attachment":null}}}`},
		{&PublisherPutMsg{ID: "p", Payload: ZBytes{1, 2, 3}},
			`{"Data":{"PublisherPut":{"id":"p","payload":"AQID","attachment":null,"encoding":null}}}`},
		{&SampleMsg{Sample: SampleWS{KeyExpr: "a", Value: ZBytes{}}, SubscriberID: "s"},
			`{"Data":{"Sample":[{"key_expr":"a","value":"","kind":"Put","encoding":"","timestamp":null,"congestion_control":0,"priority":0,"express":false,"attachement":null},"s"]}}`},
		{&QueryReplyMsg{Reply: QueryReplyWS{QueryID: "q", Result: &QueryReplyDelete{KeyExpr: "a"}}},
			`{"Data":{"Queryable":{"Reply":{"reply":{"query_uuid":"q","result":{"ReplyDelete":{"key_expr":"a"}}}}}}}`},
	}
	for _, c := range cases {
		frame, err := Encode(c.msg)
		require.NoError(t, err)
		assert.JSONEq(t, c.want, string(frame))
	}
}

func TestDecodeScenarioSample(t *testing.T) {
	msg, err := Decode([]byte(`{"Data":{"Sample":[{ "key_expr":"sensor/temp","value":[1,2,3]}, "sub-id"]}}`))
	require.NoError(t, err)

	sample, ok := msg.(*SampleMsg)
	require.True(t, ok)
	assert.Equal(t, "sub-id", sample.SubscriberID)
	assert.Equal(t, "sensor/temp", sample.Sample.KeyExpr)
	assert.Equal(t, ZBytes{1, 2, 3}, sample.Sample.Value)
	assert.Equal(t, SampleKindPut, sample.Sample.Kind)
	assert.Nil(t, sample.Sample.Timestamp)
	assert.Nil(t, sample.Sample.Attachment)
}

func TestDecodeMissingAndNullOptionals(t *testing.T) {
	missing, err := Decode([]byte(`{"Control":{"Put":{"key_expr":"a","payload":"AQ=="}}}`))
	require.NoError(t, err)
	null, err := Decode([]byte(`{"Control":{"Put":{"key_expr":"a","payload":"AQ==","encoding":null,"congestion_control":null,"priority":null,"express":null,"attachment":null}}}`))
	require.NoError(t, err)
	assert.Equal(t, missing, null)
	assert.Equal(t, &PutMsg{KeyExpr: "a", Payload: ZBytes{1}}, missing)
}

func TestDecodeAlternativeForms(t *testing.T) {
	msg, err := Decode([]byte(`{"Data":{"PublisherPut":["AQID","pub-1"]}}`))
	require.NoError(t, err)
	assert.Equal(t, &PublisherPutMsg{ID: "pub-1", Payload: ZBytes{1, 2, 3}}, msg)

	msg, err = Decode([]byte(`{"Control":{"OpenSession":null}}`))
	require.NoError(t, err)
	assert.Equal(t, &OpenSessionMsg{}, msg)

	msg, err = Decode([]byte(`{"Data":{"Sample":[{"key_expr":"a","kind":1},"s"]}}`))
	require.NoError(t, err)
	assert.Equal(t, SampleKindDelete, msg.(*SampleMsg).Sample.Kind)
}

func TestDecodeRejects(t *testing.T) {
	frames := []string{
		`{"Bogus":1}`,
		`{"Control":"Bogus"}`,
		`{"Control":{"Bogus":{}}}`,
		`{"Data":{"Bogus":{}}}`,
		`{"Data":{"Queryable":{"Bogus":{}}}}`,
		`{"Data":{"Sample":[{"key_expr":"a"}]}}`,
		`{"Data":{"Sample":[{"key_expr":"a","value":"not base64!"},"s"]}}`,
		`{"Data":{"Sample":[{"key_expr":"a","value":[256]},"s"]}}`,
		`{"Data":{"Sample":[{"key_expr":"a","kind":"Upsert"},"s"]}}`,
		`{"Data":{"Queryable":{"Reply":{"reply":{"query_uuid":"q","result":{"ReplyAll":{}}}}}}}`,
		`{"Control":{"DeclareSubscriber":{"key_expr":"a","handler":{"Lifo":1},"id":"x"}}}`,
		`{"Control":"OpenSession","Data":{}}`,
		`{"Session":null}`,
		`{"Session":""}`,
		`{"Control":{"Session":null}}`,
		`"Control"`,
		`{}`,
		`[]`,
		`not json`,
		``,
	}
	for _, frame := range frames {
		_, err := Decode([]byte(frame))
		require.Error(t, err, frame)
		assert.ErrorIs(t, err, ErrDecode, frame)

		var derr *DecodeError
		assert.ErrorAs(t, err, &derr)
	}
}

func TestDecodeErrorTruncatesFrame(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	_, err := Decode(long)
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 250)
}

func TestZBytesJSON(t *testing.T) {
	var z ZBytes
	require.NoError(t, json.Unmarshal([]byte(`"aGVsbG8="`), &z))
	assert.Equal(t, "hello", z.String())

	require.NoError(t, json.Unmarshal([]byte(`[104,105]`), &z))
	assert.Equal(t, "hi", z.String())

	require.NoError(t, json.Unmarshal([]byte(`null`), &z))
	assert.Nil(t, z)

	require.NoError(t, json.Unmarshal([]byte(`""`), &z))
	assert.NotNil(t, z)
	assert.Len(t, z, 0)

	raw, err := json.Marshal(ZBytes(nil))
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}
