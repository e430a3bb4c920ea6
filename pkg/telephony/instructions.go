package telephony

import "encoding/xml"

// Instructions is the small declarative "what next" document returned
// to the phone network from a signaling webhook: play audio, open the
// media stream, redirect, or hang up.
type Instructions struct {
	XMLName  xml.Name  `xml:"Response"`
	Say      []Say     `xml:"Say,omitempty"`
	Play     []Play    `xml:"Play,omitempty"`
	Connect  *Connect  `xml:"Connect,omitempty"`
	Redirect string    `xml:"Redirect,omitempty"`
	Hangup   *struct{} `xml:"Hangup,omitempty"`
}

type Say struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

type Play struct {
	URL string `xml:",chardata"`
}

// Connect directs the network to open the per-call media frame channel.
type Connect struct {
	Stream Stream `xml:"Stream"`
}

type Stream struct {
	URL string `xml:"url,attr"`
}

func (i *Instructions) XML() ([]byte, error) {
	body, err := xml.MarshalIndent(i, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func hangupWith(message string) *Instructions {
	return &Instructions{
		Say:    []Say{{Text: message}},
		Hangup: &struct{}{},
	}
}
