package schemas

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSchemas_Compile(t *testing.T) {
	for _, name := range []string{PainPoint, Opportunity, MarketInsight, Competitor, ActionItem, Lead} {
		t.Run(name, func(t *testing.T) {
			_, err := load(name)
			assert.NoError(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		doc     string
		wantErr bool
	}{
		{name: "valid pain point", schema: PainPoint, doc: `{"pain":"slow invoicing","severity":"high","quotes":["I lose hours"]}`},
		{name: "pain point without quotes", schema: PainPoint, doc: `{"pain":"slow invoicing","quotes":[]}`, wantErr: true},
		{name: "bad severity", schema: PainPoint, doc: `{"pain":"x","severity":"critical","quotes":["q"]}`, wantErr: true},
		{name: "score out of range", schema: Opportunity, doc: `{"title":"t","description":"d","validationScore":12}`, wantErr: true},
		{name: "valid insight", schema: MarketInsight, doc: `{"type":"trend","insight":"more freelancers"}`},
		{name: "unknown insight type", schema: MarketInsight, doc: `{"type":"rumor","insight":"x"}`, wantErr: true},
		{name: "action priority", schema: ActionItem, doc: `{"title":"t","description":"d","priority":"urgent"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.schema, []byte(tt.doc))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("nope", []byte(`{}`))
	var le *SchemaLoadError
	assert.True(t, errors.As(err, &le))
}

func TestDecodeValid(t *testing.T) {
	type item struct {
		Name string `json:"name"`
	}
	raw := []json.RawMessage{
		json.RawMessage(`{"name":"Acme"}`),
		json.RawMessage(`{"pricing":"$5"}`),
		json.RawMessage(`{"name":"Globex","strengths":["fast"]}`),
	}

	got, errs := DecodeValid[item](Competitor, raw)
	assert.Equal(t, []item{{Name: "Acme"}, {Name: "Globex"}}, got)
	assert.Len(t, errs, 1)
}
