package acsi

// sense is the pending error state of a target.
type sense struct {
	key uint8
	asc uint8
}

// marshalSense writes the 18-byte REQUEST SENSE reply.
func marshalSense(buf []byte, s sense) int {
	if len(buf) < senseSize {
		return 0
	}
	clear(buf[:senseSize])
	buf[7] = senseAddLen
	if s.asc != ASCNone {
		buf[2] = s.key
		buf[12] = s.asc
	}
	return senseSize
}

// marshalInquiry writes the 64-byte INQUIRY descriptor for an allocation
// length and returns the number of bytes to send.
func marshalInquiry(buf []byte, length uint16, present bool) int {
	if len(buf) < inquirySize {
		return 0
	}
	clear(buf[:inquirySize])
	buf[2] = deviceTypeHD
	buf[4] = uint8(length - 5)
	copy(buf[8:16], InquiryVendor)
	copy(buf[16:32], InquiryProduct)
	copy(buf[32:36], InquiryRevision)
	copy(buf[36:44], InquirySerial)
	if !present {
		buf[0] = notPresent
	}
	return min(int(length), inquirySize)
}
