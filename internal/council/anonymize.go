package council

const labelPrefix = "Response "

// Label returns the anonymous label for the i-th response (0-based):
// A..Z, then AA..AZ, BA.. and so on, like spreadsheet columns.
func Label(i int) string {
	if i < 0 {
		return ""
	}
	var buf []byte
	for n := i + 1; n > 0; n = (n - 1) / 26 {
		buf = append([]byte{byte('A' + (n-1)%26)}, buf...)
	}
	return labelPrefix + string(buf)
}

// LabeledResponse pairs a stage 1 answer with the label reviewers see.
type LabeledResponse struct {
	Label    string
	Response ModelResponse
}

// Anonymize labels responses in the order given and returns the mapping back
// to their origin. The mapping is fresh on every call.
func Anonymize(responses []ModelResponse) ([]LabeledResponse, LabelMap) {
	labeled := make([]LabeledResponse, len(responses))
	labels := make(LabelMap, len(responses))
	for i, r := range responses {
		label := Label(i)
		labeled[i] = LabeledResponse{Label: label, Response: r}
		labels[label] = LabelTarget{Model: r.Model, Instance: instanceOrOne(r.Instance)}
	}
	return labeled, labels
}

func instanceOrOne(instance int) int {
	if instance < 1 {
		return 1
	}
	return instance
}
