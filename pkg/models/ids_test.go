package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionID(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		wantArea  string
		wantDate  string
		wantShift string
		wantErr   error
	}{
		{
			name:      "single letter area",
			id:        "session_A_01-01-2024_A",
			wantArea:  "A",
			wantDate:  "2024-01-01",
			wantShift: "A",
		},
		{
			name:      "area containing underscores",
			id:        "session_doca_norte_15-03-2024_B",
			wantArea:  "doca_norte",
			wantDate:  "2024-03-15",
			wantShift: "B",
		},
		{
			name:    "empty",
			id:      "",
			wantErr: ErrEmptySessionID,
		},
		{
			name:    "missing prefix",
			id:      "sessao_A_01-01-2024_A",
			wantErr: ErrSessionIDPrefix,
		},
		{
			name:    "missing shift",
			id:      "session_A_01-01-2024_",
			wantErr: ErrSessionIDSegment,
		},
		{
			name:    "missing area",
			id:      "session_01-01-2024",
			wantErr: ErrSessionIDSegment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			area, date, shift, err := ParseSessionID(tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantArea, area)
			assert.Equal(t, tt.wantDate, date.Format("2006-01-02"))
			assert.Equal(t, tt.wantShift, shift)
		})
	}
}

func TestParseSessionID_invalidDate(t *testing.T) {
	_, _, _, err := ParseSessionID("session_A_31-02-2024_A")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session date")
}

func TestNewSessionID_roundTrip(t *testing.T) {
	date := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	id := NewSessionID("A", date, "A")
	assert.Equal(t, SessionID("session_A_01-01-2024_A"), id)
	require.NoError(t, id.Validate())
}

func TestDeriveID(t *testing.T) {
	a := DeriveID("carro", "session_A_01-01-2024_A", "C1")
	b := DeriveID("carro", "session_A_01-01-2024_A", "C1")
	c := DeriveID("carro", "session_A_01-01-2024_A", "C2")
	d := DeriveID("relatorio", "session_A_01-01-2024_A", "C1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.NotEqual(t, DeriveID("x", "ab", "c"), DeriveID("x", "a", "bc"))
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleOperador.Valid())
	assert.True(t, RoleSupervisor.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("visitante").Valid())
}
