package blood

// compatibleDonors maps each recipient group to the donor groups that may
// donate to it. Standard transfusion compatibility: O- is the universal
// donor, AB+ the universal recipient.
var compatibleDonors = map[Group][]Group{
	ONeg:  {ONeg},
	OPos:  {ONeg, OPos},
	ANeg:  {ONeg, ANeg},
	APos:  {ONeg, OPos, ANeg, APos},
	BNeg:  {ONeg, BNeg},
	BPos:  {ONeg, OPos, BNeg, BPos},
	ABNeg: {ONeg, ANeg, BNeg, ABNeg},
	ABPos: {ONeg, OPos, ANeg, APos, BNeg, BPos, ABNeg, ABPos},
}

// CompatibleDonors returns the donor groups allowed for a recipient group.
// Unknown groups get an empty set.
func CompatibleDonors(recipient Group) []Group {
	return compatibleDonors[recipient]
}

// CanDonate reports whether a donor group may donate to a recipient group.
func CanDonate(donor, recipient Group) bool {
	for _, g := range compatibleDonors[recipient] {
		if g == donor {
			return true
		}
	}
	return false
}

// CompatibleDonorStrings returns the allowed donor groups as strings,
// for SQL ANY() prefilters.
func CompatibleDonorStrings(recipient Group) []string {
	groups := compatibleDonors[recipient]
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = string(g)
	}
	return out
}
