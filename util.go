package del

// rcTable maps a base to its complement. Bases outside ACGT (upper or
// lower case) map to 'N'.
var rcTable [256]byte

func init() {
	for i := range rcTable {
		rcTable[i] = 'N'
	}
	rcTable['A'], rcTable['a'] = 'T', 'T'
	rcTable['C'], rcTable['c'] = 'G', 'G'
	rcTable['G'], rcTable['g'] = 'C', 'C'
	rcTable['T'], rcTable['t'] = 'A', 'A'
	rcTable['N'], rcTable['n'] = 'N', 'N'
}

// reverseComplement computes the reverse complement of the given DNA
// string.
func reverseComplement(seq string) string {
	buf := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		buf[len(seq)-1-i] = rcTable[seq[i]]
	}
	return string(buf)
}

var dnaBases = []byte{'A', 'C', 'G', 'T'}

func min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func max(x, y int) int {
	if x > y {
		return x
	}
	return y
}
