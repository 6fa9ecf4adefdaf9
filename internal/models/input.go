package models

// InputKind tags the variant held by an InputState.
type InputKind int

const (
	InputEmpty InputKind = iota
	InputText
	InputFile
)

func (k InputKind) String() string {
	switch k {
	case InputText:
		return "text"
	case InputFile:
		return "file"
	default:
		return "empty"
	}
}

// InputState is the user's chosen submission content: nothing, typed text,
// or a single uploaded file. The zero value is empty. Fields are unexported
// so a state can only be built through the constructors below, which keeps
// text and file mutually exclusive.
type InputState struct {
	kind InputKind
	text string
	file FileHandle
}

// EmptyInput returns the "nothing entered yet" state.
func EmptyInput() InputState {
	return InputState{}
}

// TextInput returns a text state. Empty text is the empty state.
func TextInput(text string) InputState {
	if text == "" {
		return InputState{}
	}
	return InputState{kind: InputText, text: text}
}

// FileInput returns a file state.
func FileInput(file FileHandle) InputState {
	return InputState{kind: InputFile, file: file}
}

// Kind returns which variant is held.
func (s InputState) Kind() InputKind { return s.kind }

// IsEmpty reports whether neither text nor a file is held.
func (s InputState) IsEmpty() bool { return s.kind == InputEmpty }

// Text returns the typed text, if any.
func (s InputState) Text() (string, bool) {
	return s.text, s.kind == InputText
}

// File returns the selected file, if any.
func (s InputState) File() (FileHandle, bool) {
	return s.file, s.kind == InputFile
}
