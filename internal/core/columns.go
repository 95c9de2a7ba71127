package core

import "strings"

// Candidate column names for each canonical field, in priority order.
var (
	IpCandidates        = []string{"ip", "ip_address", "source_ip", "destination_ip", "src_ip", "dst_ip", "ipaddress", "ip address"}
	MsisdnCandidates    = []string{"msisdn", "msisdn_number", "msisdn_no", "msisdnid"}
	TimestampCandidates = []string{"timestamp", "time", "date", "ts", "datetime"}
	VolumeCandidates    = []string{"data_volume", "volume", "bytes", "data_bytes", "data_volume_bytes"}
)

// ResolveColumn picks the column that best matches the candidates. An exact
// case-insensitive match wins first; otherwise the first candidate that is a
// case-insensitive substring of any column wins. Ties are broken by the order
// of candidates, then by the order of columns.
func ResolveColumn(columns []string, candidates []string) (string, bool) {
	lowered := make([]string, len(columns))
	for i, c := range columns {
		lowered[i] = strings.ToLower(c)
	}

	for _, cand := range candidates {
		cand = strings.ToLower(cand)
		for i, c := range lowered {
			if c == cand {
				return columns[i], true
			}
		}
	}

	for _, cand := range candidates {
		cand = strings.ToLower(cand)
		for i, c := range lowered {
			if strings.Contains(c, cand) {
				return columns[i], true
			}
		}
	}

	return "", false
}

// ColumnMapping holds the resolved column for each canonical field. An empty
// string means the field could not be resolved in the dataset.
type ColumnMapping struct {
	Ip        string
	Msisdn    string
	Timestamp string
	Volume    string
}

func ResolveKeyColumns(columns []string) ColumnMapping {
	var m ColumnMapping
	m.Ip, _ = ResolveColumn(columns, IpCandidates)
	m.Msisdn, _ = ResolveColumn(columns, MsisdnCandidates)
	m.Timestamp, _ = ResolveColumn(columns, TimestampCandidates)
	m.Volume, _ = ResolveColumn(columns, VolumeCandidates)
	return m
}

// Indices returns the position of every mapped column in columns, -1 when the
// field is unresolved.
func (m ColumnMapping) Indices(columns []string) ColumnIndices {
	index := func(name string) int {
		if name == "" {
			return -1
		}
		for i, c := range columns {
			if c == name {
				return i
			}
		}
		return -1
	}
	return ColumnIndices{
		Ip:        index(m.Ip),
		Msisdn:    index(m.Msisdn),
		Timestamp: index(m.Timestamp),
		Volume:    index(m.Volume),
	}
}

type ColumnIndices struct {
	Ip        int
	Msisdn    int
	Timestamp int
	Volume    int
}
