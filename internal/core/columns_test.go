package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveColumn(t *testing.T) {
	tests := []struct {
		name       string
		columns    []string
		candidates []string
		expected   string
		found      bool
	}{
		{
			name:       "exact match is case insensitive",
			columns:    []string{"Source_IP", "Timestamp"},
			candidates: []string{"ip", "source_ip"},
			expected:   "Source_IP",
			found:      true,
		},
		{
			name:       "exact match beats earlier substring match",
			columns:    []string{"src_ip_raw", "IP"},
			candidates: []string{"ip"},
			expected:   "IP",
			found:      true,
		},
		{
			name:       "candidate priority wins over column order",
			columns:    []string{"total_bytes", "data_volume_mb"},
			candidates: VolumeCandidates,
			expected:   "data_volume_mb",
			found:      true,
		},
		{
			name:       "substring match",
			columns:    []string{"Subscriber_MSISDN", "start"},
			candidates: MsisdnCandidates,
			expected:   "Subscriber_MSISDN",
			found:      true,
		},
		{
			name:       "unresolved",
			columns:    []string{"a", "b"},
			candidates: IpCandidates,
			found:      false,
		},
		{
			name:       "no columns",
			columns:    nil,
			candidates: IpCandidates,
			found:      false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			col, ok := ResolveColumn(tc.columns, tc.candidates)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.expected, col)
		})
	}
}

func TestResolveKeyColumns(t *testing.T) {
	columns := []string{"ip", "timestamp", "msisdn", "data_volume", "duration"}

	mapping := ResolveKeyColumns(columns)
	assert.Equal(t, ColumnMapping{Ip: "ip", Msisdn: "msisdn", Timestamp: "timestamp", Volume: "data_volume"}, mapping)
	assert.Equal(t, ColumnIndices{Ip: 0, Timestamp: 1, Msisdn: 2, Volume: 3}, mapping.Indices(columns))

	partial := ResolveKeyColumns([]string{"Destination_IP", "octets"})
	assert.Equal(t, "Destination_IP", partial.Ip)
	assert.Equal(t, "", partial.Volume)
	assert.Equal(t, -1, partial.Indices([]string{"Destination_IP", "octets"}).Volume)
}
