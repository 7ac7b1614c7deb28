// Package crc implements the masked CRC32C used to guard record-log
// fragments and table blocks. The checksum algorithm itself is an
// external collaborator per the core's scope (spec.md §1); this package
// only applies and removes the mask described in §6.
package crc

import "hash/crc32"

var table = crc32.MakeTable(crc32.Castagnoli)

const maskDelta = 0xa282ead8

// Value returns the unmasked CRC32C of data.
func Value(data []byte) uint32 {
	return crc32.Checksum(data, table)
}

// Extend returns the unmasked CRC32C of data appended to the stream that
// produced crc.
func Extend(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, table, data)
}

// Mask rotates crc by 15 bits and adds a constant so that a masked CRC
// stored in a record never collides with a naively recomputed CRC of the
// same bytes (spec.md §6).
func Mask(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// Unmask inverts Mask.
func Unmask(masked uint32) uint32 {
	rot := masked - maskDelta
	return (rot >> 17) | (rot << 15)
}
