package fatfs

// Result is a filesystem result code.
type Result int

// Result codes.
const (
	ResultOK             Result = iota // Succeeded
	ResultDiskErr                      // Low level disk I/O error
	ResultIntErr                       // Assertion failed (broken cluster chain)
	ResultNotReady                     // Physical drive not ready
	ResultNoFile                       // File not found
	ResultNoPath                       // Path not found
	ResultInvalidName                  // Path name format invalid
	ResultDenied                       // Access denied
	ResultExist                        // Object exists
	ResultInvalidObject                // File or directory object invalid
	ResultWriteProtected               // Write protected
	ResultInvalidDrive                 // Logical drive number invalid
	ResultNotEnabled                   // Volume has no work area
	ResultNoFilesystem                 // No valid FAT volume
	ResultMkfsAborted                  // Format aborted
	ResultTimeout                      // Could not get a grant to access the volume
	ResultLocked                       // Operation rejected by file sharing policy
	ResultNotEnoughCore                // Link map buffer too small
	ResultTooManyOpenFiles             // Too many open files
	ResultInvalidParameter             // Given parameter is invalid
)

var resultNames = [...]string{
	ResultOK:               "ok",
	ResultDiskErr:          "disk error",
	ResultIntErr:           "internal error",
	ResultNotReady:         "not ready",
	ResultNoFile:           "no file",
	ResultNoPath:           "no path",
	ResultInvalidName:      "invalid name",
	ResultDenied:           "denied",
	ResultExist:            "exist",
	ResultInvalidObject:    "invalid object",
	ResultWriteProtected:   "write protected",
	ResultInvalidDrive:     "invalid drive",
	ResultNotEnabled:       "not enabled",
	ResultNoFilesystem:     "no filesystem",
	ResultMkfsAborted:      "mkfs aborted",
	ResultTimeout:          "timeout",
	ResultLocked:           "locked",
	ResultNotEnoughCore:    "not enough core",
	ResultTooManyOpenFiles: "too many open files",
	ResultInvalidParameter: "invalid parameter",
}

// Error implements the error interface.
func (r Result) Error() string {
	if r >= 0 && int(r) < len(resultNames) {
		return "fatfs: " + resultNames[r]
	}
	return "fatfs: unknown result"
}
