package descriptor

import "github.com/btcdescriptors/descriptor/checksum"

func verifyChecksum(body, checksumStr string) error {
	return checksum.Verify(body, checksumStr)
}
