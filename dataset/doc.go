// Package dataset reads, writes and transforms tabular data held in gota
// data frames.
//
// Missing cells are gota NA elements. Readers map empty cells and the usual
// null spellings (NA, NaN, null, N/A) to NA; writers emit them as empty
// cells in spreadsheets and as "NaN" in CSV.
//
// Every transform returns a new frame and leaves its input untouched.
package dataset
