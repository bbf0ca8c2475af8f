// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import "hash/crc32"

// checksum computes the IEEE CRC-32 stored in directory entries.
func checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
