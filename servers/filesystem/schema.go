package filesystem

// ReadFileArgs is the arguments for the read_file tool.
type ReadFileArgs struct {
	Path string `json:"path" jsonschema:"description=Path of the file to read"`
}

// ReadMultipleFilesArgs is the arguments for the read_multiple_files tool.
type ReadMultipleFilesArgs struct {
	Paths []string `json:"paths" jsonschema:"description=Paths of the files to read"`
}

// WriteFileArgs is the arguments for the write_file tool.
type WriteFileArgs struct {
	Path    string `json:"path" jsonschema:"description=Path of the file to write"`
	Content string `json:"content" jsonschema:"description=Content that replaces the file"`
}

// EditFileArgs is the arguments for the edit_file tool.
type EditFileArgs struct {
	Path   string          `json:"path" jsonschema:"description=Path of the file to edit"`
	Edits  []EditOperation `json:"edits" jsonschema:"description=Replacements applied in order"`
	DryRun bool            `json:"dryRun,omitempty" jsonschema:"description=Preview the diff without writing"`
}

// EditOperation replaces the first match of OldText with NewText.
type EditOperation struct {
	OldText string `json:"oldText" jsonschema:"description=Text to search for"`
	NewText string `json:"newText" jsonschema:"description=Text to replace it with"`
}

// CreateDirectoryArgs is the arguments for the create_directory tool.
type CreateDirectoryArgs struct {
	Path string `json:"path" jsonschema:"description=Directory to create, along with missing parents"`
}

// ListDirectoryArgs is the arguments for the list_directory tool.
type ListDirectoryArgs struct {
	Path string `json:"path" jsonschema:"description=Directory to list"`
}

// DirectoryTreeArgs is the arguments for the directory_tree tool.
type DirectoryTreeArgs struct {
	Path string `json:"path" jsonschema:"description=Directory at the top of the tree"`
}

// MoveFileArgs is the arguments for the move_file tool.
type MoveFileArgs struct {
	Source      string `json:"source" jsonschema:"description=Existing path"`
	Destination string `json:"destination" jsonschema:"description=New path, which must not exist"`
}

// SearchFilesArgs is the arguments for the search_files tool.
type SearchFilesArgs struct {
	Path    string   `json:"path" jsonschema:"description=Directory to search from"`
	Pattern string   `json:"pattern" jsonschema:"description=Case-insensitive substring of the names to find"`
	Exclude []string `json:"excludePatterns,omitempty" jsonschema:"description=Glob patterns of paths to skip"`
}

// GetFileInfoArgs is the arguments for the get_file_info tool.
type GetFileInfoArgs struct {
	Path string `json:"path" jsonschema:"description=Path to inspect"`
}

type treeEntry struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Children []treeEntry `json:"children,omitempty"`
}
