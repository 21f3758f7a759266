package validator

import (
	"errors"
	"testing"

	"github.com/KOMKZ/go-yogan-ratelimiter/errcode"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkReq struct {
	UniqueID string
	UserID   string
	Rate     float64
	fail     error
}

func (r checkReq) Validate() error {
	if r.fail != nil {
		return r.fail
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.UniqueID, validation.Required),
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Rate, validation.Min(0.0).Exclusive()),
	)
}

func TestValidateRequest(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateRequest(checkReq{UniqueID: "bot", UserID: "u1", Rate: 1}))
	})

	t.Run("field errors", func(t *testing.T) {
		err := ValidateRequest(checkReq{Rate: -1})
		require.Error(t, err)

		var le *errcode.LayeredError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, 10010, le.Code())
		assert.Equal(t, 400, le.HTTPStatus())
		assert.True(t, errors.Is(err, errcode.ErrInvalidParams))

		fields, ok := le.Data()["fields"].(map[string]string)
		require.True(t, ok)
		assert.Contains(t, fields, "UniqueID")
		assert.Contains(t, fields, "UserID")
		assert.Contains(t, fields, "Rate")
	})

	t.Run("layered error passes through", func(t *testing.T) {
		custom := errcode.ErrUnauthorized.WithMsg("nope")
		err := ValidateRequest(checkReq{fail: custom})
		assert.Same(t, custom, err)
	})

	t.Run("plain error becomes invalid params", func(t *testing.T) {
		err := ValidateRequest(checkReq{fail: errors.New("bad body")})
		var le *errcode.LayeredError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, errcode.ErrInvalidParams.Code(), le.Code())
		assert.Equal(t, "bad body", le.Message())
	})
}

func TestConvertValidationError_Nested(t *testing.T) {
	err := ConvertValidationError(validation.Errors{
		"storage": validation.Errors{"type": errors.New("must be a valid value")},
		"skip":    nil,
	})
	var le *errcode.LayeredError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, map[string]string{"storage.type": "must be a valid value"}, le.Data()["fields"])
}
