package spreadsheet

import "strings"

// accentFold maps common accented Latin letters to their unaccented form,
// backing textEquals's AccentSensitive handling without pulling in a full
// Unicode normalization dependency for a handful of spreadsheet-function
// text comparisons.
var accentFold = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ä", "a", "ã", "a", "å", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "ö", "o", "õ", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ñ", "n", "ç", "c",
	"Á", "A", "À", "A", "Â", "A", "Ä", "A", "Ã", "A", "Å", "A",
	"É", "E", "È", "E", "Ê", "E", "Ë", "E",
	"Í", "I", "Ì", "I", "Î", "I", "Ï", "I",
	"Ó", "O", "Ò", "O", "Ô", "O", "Ö", "O", "Õ", "O",
	"Ú", "U", "Ù", "U", "Û", "U", "Ü", "U",
	"Ñ", "N", "Ç", "C",
)

// foldText normalizes s for comparison purposes according to cfg's
// CaseSensitive and AccentSensitive flags - a nil cfg folds both, matching
// DefaultConfig's case/accent-insensitive defaults.
func foldText(s string, cfg *Config) string {
	if cfg == nil || !cfg.AccentSensitive {
		s = accentFold.Replace(s)
	}
	if cfg == nil || !cfg.CaseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

// textEquals compares a and b the way text-matching builtins (SEARCH,
// SWITCH, COUNTUNIQUE's dedup key) should, honouring cfg. EXACT bypasses
// this - it is always a literal, case- and accent-sensitive compare
// regardless of engine configuration.
func textEquals(a, b string, cfg *Config) bool {
	return foldText(a, cfg) == foldText(b, cfg)
}

// textIndex finds needle's first rune offset within haystack honouring
// cfg's case/accent sensitivity, or -1 if absent. Offsets are computed on
// the folded strings, which preserve rune-for-rune length against the
// original since every fold substitution is a single rune.
func textIndex(haystack, needle string, cfg *Config) int {
	foldedHay := []rune(foldText(haystack, cfg))
	foldedNeedle := []rune(foldText(needle, cfg))
	if len(foldedNeedle) == 0 {
		return 0
	}
	for i := 0; i+len(foldedNeedle) <= len(foldedHay); i++ {
		match := true
		for j, r := range foldedNeedle {
			if foldedHay[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// StringTable provides string interning for efficient string storage with
// reference counting
type StringTable struct {
	strings    map[string]uint32
	reverseMap map[uint32]string
	refCounts  map[uint32]int // reference count for each string ID
	nextID     uint32
}

// NewStringTable creates a new string table
func NewStringTable() *StringTable {
	return &StringTable{
		strings:    make(map[string]uint32),
		reverseMap: make(map[uint32]string),
		refCounts:  make(map[uint32]int),
		nextID:     1, // start at 1, reserve 0 for nil/empty
	}
}

// Intern adds a string to the table or increments its reference count if
// it already exists. returns the ID of the string.
func (st *StringTable) Intern(s string) uint32 {
	// check if string already exists
	if id, exists := st.strings[s]; exists {
		st.refCounts[id]++
		return id
	}

	// add new string
	id := st.nextID
	st.strings[s] = id
	st.reverseMap[id] = s
	st.refCounts[id] = 1
	st.nextID++

	return id
}

// GetString retrieves a string by its ID
func (st *StringTable) GetString(id uint32) (string, bool) {
	s, exists := st.reverseMap[id]
	return s, exists
}

// Contains checks if a string exists in the table and returns its ID
func (st *StringTable) Contains(s string) (uint32, bool) {
	id, exists := st.strings[s]
	return id, exists
}

// AddReference increments the reference count for a string ID
func (st *StringTable) AddReference(id uint32) bool {
	if _, exists := st.reverseMap[id]; !exists {
		return false
	}
	st.refCounts[id]++
	return true
}

// RemoveReference decrements the reference count for a string ID. if the
// count reaches 0, the string is removed from the table. returns true if
// the string was removed, false otherwise.
func (st *StringTable) RemoveReference(id uint32) bool {
	s, exists := st.reverseMap[id]
	if !exists {
		return false
	}

	st.refCounts[id]--
	if st.refCounts[id] <= 0 {
		// remove the string from all maps
		delete(st.strings, s)
		delete(st.reverseMap, id)
		delete(st.refCounts, id)
		return true
	}

	return false
}

// GetReferenceCount returns the reference count for a string ID
func (st *StringTable) GetReferenceCount(id uint32) int {
	return st.refCounts[id]
}

// Count returns the number of unique strings in the table
func (st *StringTable) Count() int {
	return len(st.strings)
}

// TotalReferences returns the total number of references across all strings
func (st *StringTable) TotalReferences() int {
	total := 0
	for _, count := range st.refCounts {
		total += count
	}
	return total
}

// Clear removes all strings from the table
func (st *StringTable) Clear() {
	st.strings = make(map[string]uint32)
	st.reverseMap = make(map[uint32]string)
	st.refCounts = make(map[uint32]int)
	st.nextID = 1
}
