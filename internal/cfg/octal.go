package cfg

import "strconv"

// Octal is the datatype for the file-mode and dir-mode settings, which
// accept a base-8 value such as "0755" on the command line or in a YAML
// config file.
type Octal int

func (o *Octal) UnmarshalText(text []byte) error {
	v, err := strconv.ParseInt(string(text), 8, 32)
	if err != nil {
		return err
	}
	*o = Octal(v)
	return nil
}

func (o Octal) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(o), 8)), nil
}
