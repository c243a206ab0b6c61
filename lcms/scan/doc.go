// Package scan defines the raw-data model shared by all LC-MS
// preprocessing stages: centroided scans, range queries over them, and
// the SpectrumAccess interface that detection and gap-filling read
// through.
//
// The package deliberately knows nothing about file formats. Decoding
// mzML or vendor formats into scans is the job of an external reader;
// the in-memory [Memory] store is sufficient for tests and for data
// already decoded elsewhere.
package scan
