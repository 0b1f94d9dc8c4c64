// Package storage writes and reads the extracted course list.
//
// Output files are JSON arrays of course records indented with four spaces.
// Writes are atomic: the file is written to a temporary path in the same
// directory and renamed into place, so a failed run never leaves a partial
// file behind. The default location is the current directory; a leading
// "~/" in the data directory is expanded to the user's home.
package storage
