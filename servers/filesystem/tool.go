package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/contextwire/go-mcp"
)

func (s *Server) registerTools(srv *mcp.Server) {
	srv.AddTool("read_file", "Read the complete contents of a file from the file system. "+
		"Only works within allowed directories.",
		mcp.TypedToolHandler(s.callReadFile), mcp.WithInputSchemaOf[ReadFileArgs]())
	srv.AddTool("read_multiple_files", "Read the contents of multiple files simultaneously. "+
		"Failed reads for individual files won't stop the entire operation.",
		mcp.TypedToolHandler(s.callReadMultipleFiles), mcp.WithInputSchemaOf[ReadMultipleFilesArgs]())
	srv.AddTool("write_file", "Create a new file or completely overwrite an existing file with new content.",
		mcp.TypedToolHandler(s.callWriteFile), mcp.WithInputSchemaOf[WriteFileArgs]())
	srv.AddTool("edit_file", "Make line-based edits to a text file and return a git-style diff of the changes.",
		mcp.TypedToolHandler(s.callEditFile), mcp.WithInputSchemaOf[EditFileArgs]())
	srv.AddTool("create_directory", "Create a new directory or ensure a directory exists, "+
		"including nested directories.",
		mcp.TypedToolHandler(s.callCreateDirectory), mcp.WithInputSchemaOf[CreateDirectoryArgs]())
	srv.AddTool("list_directory", "Get a detailed listing of all files and directories in a specified path. "+
		"Results distinguish between files and directories with [FILE] and [DIR] prefixes.",
		mcp.TypedToolHandler(s.callListDirectory), mcp.WithInputSchemaOf[ListDirectoryArgs]())
	srv.AddTool("directory_tree", "Get a recursive tree view of files and directories as a JSON structure.",
		mcp.TypedToolHandler(s.callDirectoryTree), mcp.WithInputSchemaOf[DirectoryTreeArgs]())
	srv.AddTool("move_file", "Move or rename files and directories. Fails if the destination exists.",
		mcp.TypedToolHandler(s.callMoveFile), mcp.WithInputSchemaOf[MoveFileArgs]())
	srv.AddTool("search_files", "Recursively search for files and directories whose names contain a pattern.",
		mcp.TypedToolHandler(s.callSearchFiles), mcp.WithInputSchemaOf[SearchFilesArgs]())
	srv.AddTool("get_file_info", "Retrieve metadata about a file or directory.",
		mcp.TypedToolHandler(s.callGetFileInfo), mcp.WithInputSchemaOf[GetFileInfoArgs]())
	srv.AddTool("list_allowed_directories", "Returns the list of directories this server is allowed to access.",
		s.callListAllowedDirectories)
}

func (s *Server) callReadFile(_ context.Context, _ *mcp.Request, args ReadFileArgs) (any, error) {
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	return readRegularFile(path)
}

func (s *Server) callReadMultipleFiles(_ context.Context, _ *mcp.Request, args ReadMultipleFilesArgs) (any, error) {
	contents := make([]mcp.Content, 0, len(args.Paths))
	for _, p := range args.Paths {
		path, err := s.resolve(p)
		var text string
		if err == nil {
			text, err = readRegularFile(path)
		}
		if err != nil {
			contents = append(contents, mcp.TextContent(fmt.Sprintf("%s: Error - %v", p, err)))
			continue
		}
		contents = append(contents, mcp.TextContent(fmt.Sprintf("%s:\n%s\n", p, text)))
	}
	return contents, nil
}

func readRegularFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory, not a file", path)
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func (s *Server) callWriteFile(_ context.Context, _ *mcp.Request, args WriteFileArgs) (any, error) {
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o600); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Successfully wrote to %s", args.Path), nil
}

func (s *Server) callEditFile(_ context.Context, _ *mcp.Request, args EditFileArgs) (any, error) {
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	before, err := readRegularFile(path)
	if err != nil {
		return nil, err
	}
	after, err := applyEdits(before, args.Edits)
	if err != nil {
		return nil, mcp.JSONRPCError{Code: mcp.CodeInvalidParams, Message: "Invalid params", Data: err.Error()}
	}

	diff := unifiedDiff(args.Path, before, after)
	if args.DryRun {
		return diff, nil
	}
	if err := os.WriteFile(path, []byte(after), 0o600); err != nil {
		return nil, err
	}
	return diff, nil
}

func (s *Server) callCreateDirectory(_ context.Context, _ *mcp.Request, args CreateDirectoryArgs) (any, error) {
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Successfully created directory %s", args.Path), nil
}

func (s *Server) callListDirectory(_ context.Context, _ *mcp.Request, args ListDirectoryArgs) (any, error) {
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, entry := range entries {
		prefix := "[FILE] "
		if entry.IsDir() {
			prefix = "[DIR] "
		}
		b.WriteString(prefix + entry.Name() + "\n")
	}
	return b.String(), nil
}

func (s *Server) callDirectoryTree(_ context.Context, _ *mcp.Request, args DirectoryTreeArgs) (any, error) {
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	tree, err := s.buildTree(path)
	if err != nil {
		return nil, err
	}
	bs, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

func (s *Server) callMoveFile(_ context.Context, _ *mcp.Request, args MoveFileArgs) (any, error) {
	source, err := s.resolve(args.Source)
	if err != nil {
		return nil, err
	}
	destination, err := s.resolve(args.Destination)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(destination); err == nil {
		return nil, fmt.Errorf("destination %s already exists", args.Destination)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err := os.Rename(source, destination); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Successfully moved %s to %s", args.Source, args.Destination), nil
}

func (s *Server) callSearchFiles(_ context.Context, _ *mcp.Request, args SearchFilesArgs) (any, error) {
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	matches, err := s.searchFiles(path, args.Pattern, args.Exclude)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return "No matches found", nil
	}
	return strings.Join(matches, "\n"), nil
}

func (s *Server) callGetFileInfo(_ context.Context, _ *mcp.Request, args GetFileInfoArgs) (any, error) {
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("size: %d\nmodified: %s\nisDirectory: %t\nisFile: %t\npermissions: %s",
		info.Size(), info.ModTime().Format(time.RFC3339), info.IsDir(), info.Mode().IsRegular(),
		info.Mode().Perm()), nil
}

func (s *Server) callListAllowedDirectories(context.Context, *mcp.Request, json.RawMessage) (any, error) {
	return "Allowed directories:\n" + strings.Join(s.roots, "\n"), nil
}
