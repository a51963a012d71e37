package consistency

import (
	"sort"

	"flockcore/pkg/domain"
)

// Classification buckets a record key after comparing both sides.
type Classification string

// Every key in the union of both sides lands in exactly one bucket.
const (
	Consistent   Classification = "consistent"
	Inconsistent Classification = "inconsistent"
	LocalOnly    Classification = "local_only"
	RemoteOnly   Classification = "remote_only"
)

// FieldDiff reports one differing field for an inconsistent record pair.
type FieldDiff struct {
	Field  string `json:"field"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// Comparison is the per-key result. Local/Remote are nil for one-sided keys.
type Comparison struct {
	Key            string                   `json:"key"`
	Classification Classification           `json:"classification"`
	Local          *domain.AttendanceRecord `json:"local,omitempty"`
	Remote         *domain.AttendanceRecord `json:"remote,omitempty"`
	Diffs          []FieldDiff              `json:"diffs,omitempty"`
}

// Duplicate flags a key that appears more than once within a single side.
// Duplicates are a data-quality signal, separate from the classification;
// the first occurrence participates in the comparison.
type Duplicate struct {
	Side  string `json:"side"` // "local" or "remote"
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Counts summarises a report per classification bucket.
type Counts struct {
	Consistent   int `json:"consistent"`
	Inconsistent int `json:"inconsistent"`
	LocalOnly    int `json:"local_only"`
	RemoteOnly   int `json:"remote_only"`
}

// Total returns the number of classified keys.
func (c Counts) Total() int {
	return c.Consistent + c.Inconsistent + c.LocalOnly + c.RemoteOnly
}

// Report is the complete comparison output, ordered by key so it is stable
// for both UI listings and machine-readable export. No truncation: every
// key in the union is represented.
type Report struct {
	Comparisons []Comparison `json:"comparisons"`
	Duplicates  []Duplicate  `json:"duplicates,omitempty"`
	Counts      Counts       `json:"counts"`
}

// Compare classifies every record key present on either side.
func Compare(local, remote []domain.AttendanceRecord) Report {
	localIndex, localDups := indexRecords("local", local)
	remoteIndex, remoteDups := indexRecords("remote", remote)

	keys := make([]string, 0, len(localIndex)+len(remoteIndex))
	for key := range localIndex {
		keys = append(keys, key)
	}
	for key := range remoteIndex {
		if _, seen := localIndex[key]; !seen {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	report := Report{Duplicates: append(localDups, remoteDups...)}
	for _, key := range keys {
		l, hasLocal := localIndex[key]
		r, hasRemote := remoteIndex[key]
		cmp := Comparison{Key: key}
		switch {
		case hasLocal && hasRemote:
			cmp.Local, cmp.Remote = &l, &r
			cmp.Diffs = diffFields(l, r)
			if len(cmp.Diffs) == 0 {
				cmp.Classification = Consistent
				report.Counts.Consistent++
			} else {
				cmp.Classification = Inconsistent
				report.Counts.Inconsistent++
			}
		case hasLocal:
			cmp.Local = &l
			cmp.Classification = LocalOnly
			report.Counts.LocalOnly++
		default:
			cmp.Remote = &r
			cmp.Classification = RemoteOnly
			report.Counts.RemoteOnly++
		}
		report.Comparisons = append(report.Comparisons, cmp)
	}
	return report
}

func indexRecords(side string, records []domain.AttendanceRecord) (map[string]domain.AttendanceRecord, []Duplicate) {
	index := make(map[string]domain.AttendanceRecord, len(records))
	counts := make(map[string]int, len(records))
	for _, rec := range records {
		key := RecordKey(rec)
		counts[key]++
		if _, exists := index[key]; !exists {
			index[key] = rec
		}
	}
	var dups []Duplicate
	for key, n := range counts {
		if n > 1 {
			dups = append(dups, Duplicate{Side: side, Key: key, Count: n})
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].Key < dups[j].Key })
	return index, dups
}

func diffFields(l, r domain.AttendanceRecord) []FieldDiff {
	var diffs []FieldDiff
	for _, f := range comparisonFields {
		lv, rv := f.extract(l), f.extract(r)
		if lv != rv {
			diffs = append(diffs, FieldDiff{Field: f.name, Local: lv, Remote: rv})
		}
	}
	return diffs
}
